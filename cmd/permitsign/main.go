// Command permitsign signs an ERC-20 permit and prints the arguments for the
// token's permit call as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skapa-xyz/permit"
	"github.com/skapa-xyz/permit/chain"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "permitsign: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("permit signing failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(level string) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		lvl,
	)
	return zap.New(core, zap.AddCaller())
}

func run(ctx context.Context, cfg *Config, logger *zap.Logger, out io.Writer) error {
	in, err := cfg.Input()
	if err != nil {
		return err
	}
	dialect, err := permit.ParseDialect(cfg.Dialect)
	if err != nil {
		return err
	}

	reader, client, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	if in.ChainID == nil {
		if in.ChainID, err = client.ChainID(ctx); err != nil {
			return fmt.Errorf("failed to read chain id: %w", err)
		}
	}

	signer, err := newSigner(cfg, client)
	if err != nil {
		return err
	}
	logger.Info("signing permit",
		zap.Stringer("dialect", dialect),
		zap.String("signer", signer.Address().Hex()),
		zap.Stringer("chainId", in.ChainID),
		zap.String("token", in.Contract.Hex()),
	)

	p := permit.NewPermitter(in, signer, reader, permit.WithLogger(logger))
	params, td, err := p.Prepare(ctx, dialect, permit.Request{})
	if err != nil {
		return err
	}
	if cfg.CheckDomain {
		if err := checkDomain(ctx, reader, td, logger); err != nil {
			return err
		}
	}

	// Everything is resolved now; the signing call reads nothing more.
	req := permit.Request{Input: params.Input()}
	var sig *permit.PermitSignature
	switch dialect {
	case permit.Dai:
		sig, err = p.SignDaiPermit(ctx, req)
	default:
		sig, err = p.SignPermit(ctx, req)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(newOutput(*in.Contract, dialect, sig))
}

func newSigner(cfg *Config, client *ethclient.Client) (permit.SigningCapability, error) {
	switch {
	case cfg.PrivateKey != "":
		return permit.NewSigner(cfg.PrivateKey)
	case cfg.KeystoreFile != "":
		keyJSON, err := os.ReadFile(cfg.KeystoreFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read keystore: %w", err)
		}
		return permit.NewSignerFromKeystore(keyJSON, cfg.KeystorePassword)
	default:
		return chain.NewRPCSigner(client.Client(), common.HexToAddress(cfg.Account)), nil
	}
}

// checkDomain compares the domain about to be signed with the token's
// DOMAIN_SEPARATOR. Tokens without the getter are skipped.
func checkDomain(ctx context.Context, reader *chain.Reader, td *permit.TypedData, logger *zap.Logger) error {
	domain := td.Domain()
	onChain, err := reader.DomainSeparator(ctx, domain.VerifyingContract)
	if err != nil {
		logger.Warn("token has no DOMAIN_SEPARATOR, skipping domain check", zap.Error(err))
		return nil
	}
	return permit.CheckDomain(onChain, td)
}

type output struct {
	Dialect  string         `json:"dialect"`
	Token    common.Address `json:"token"`
	Owner    common.Address `json:"owner"`
	Spender  common.Address `json:"spender"`
	Value    string         `json:"value,omitempty"`
	Nonce    string         `json:"nonce"`
	Deadline string         `json:"deadline"`
	Allowed  *bool          `json:"allowed,omitempty"`
	V        uint8          `json:"v"`
	R        common.Hash    `json:"r"`
	S        common.Hash    `json:"s"`
	Digest   common.Hash    `json:"digest"`
	Bytes    hexutil.Bytes  `json:"signature"`
}

func newOutput(token common.Address, d permit.Dialect, sig *permit.PermitSignature) output {
	o := output{
		Dialect:  d.String(),
		Token:    token,
		Owner:    sig.Owner,
		Spender:  sig.Spender,
		Nonce:    sig.Nonce.String(),
		Deadline: sig.Deadline.String(),
		V:        sig.V,
		R:        sig.R,
		S:        sig.S,
		Digest:   sig.Hash,
		Bytes:    sig.Bytes(),
	}
	if d == permit.Dai {
		o.Allowed = &sig.Allowed
	} else {
		o.Value = sig.Value.String()
	}
	return o
}
