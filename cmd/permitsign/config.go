package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"

	"github.com/skapa-xyz/permit"
)

// Config is read from PERMIT_* environment variables. A .env file in the
// working directory is loaded first.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	RPCURL string `env:"RPC_URL,required,notEmpty"`

	// Exactly one signing source: a raw key, a keystore file or an account
	// unlocked in the node or wallet behind RPC_URL.
	PrivateKey       string `env:"PRIVATE_KEY"`
	KeystoreFile     string `env:"KEYSTORE_FILE"`
	KeystorePassword string `env:"KEYSTORE_PASSWORD"`
	Account          string `env:"ACCOUNT"`

	Dialect     string `env:"DIALECT" envDefault:"eip2612"`
	ChainID     string `env:"CHAIN_ID"`
	Token       string `env:"TOKEN,required,notEmpty"`
	Owner       string `env:"OWNER"`
	Spender     string `env:"SPENDER,required,notEmpty"`
	Value       string `env:"VALUE"`
	Nonce       string `env:"NONCE"`
	Deadline    string `env:"DEADLINE"`
	Name        string `env:"NAME"`
	Version     string `env:"VERSION"`
	CheckDomain bool   `env:"CHECK_DOMAIN" envDefault:"true"`
}

// LoadConfig parses the environment.
func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "PERMIT_"})
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	sources := 0
	for _, s := range []string{c.PrivateKey, c.KeystoreFile, c.Account} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("set exactly one of PERMIT_PRIVATE_KEY, PERMIT_KEYSTORE_FILE or PERMIT_ACCOUNT")
	}
	if _, err := permit.ParseDialect(c.Dialect); err != nil {
		return err
	}
	for name, addr := range map[string]string{"PERMIT_TOKEN": c.Token, "PERMIT_SPENDER": c.Spender, "PERMIT_OWNER": c.Owner, "PERMIT_ACCOUNT": c.Account} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not an address: %q", name, addr)
		}
	}
	_, err := c.Input()
	return err
}

// Input converts the configured parameters. Unset values stay absent so the
// permit resolver can fill them from the token.
func (c *Config) Input() (permit.Input, error) {
	in := permit.Input{
		Contract:      addressOrNil(c.Token),
		Owner:         addressOrNil(c.Owner),
		Spender:       addressOrNil(c.Spender),
		ERC20Name:     c.Name,
		PermitVersion: c.Version,
	}

	var err error
	if in.ChainID, err = bigOrNil("PERMIT_CHAIN_ID", c.ChainID); err != nil {
		return permit.Input{}, err
	}
	if in.Value, err = bigOrNil("PERMIT_VALUE", c.Value); err != nil {
		return permit.Input{}, err
	}
	if in.Nonce, err = bigOrNil("PERMIT_NONCE", c.Nonce); err != nil {
		return permit.Input{}, err
	}
	if in.Deadline, err = bigOrNil("PERMIT_DEADLINE", c.Deadline); err != nil {
		return permit.Input{}, err
	}
	return in, nil
}

func addressOrNil(s string) *common.Address {
	if s == "" {
		return nil
	}
	addr := common.HexToAddress(s)
	return &addr
}

// bigOrNil accepts decimal or 0x-prefixed hex.
func bigOrNil(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%s is not a number: %q", name, s)
	}
	return v, nil
}
