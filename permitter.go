package permit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// TokenReader reads the permit-related state of a token contract.
type TokenReader interface {
	NonceReader
	Name(ctx context.Context, token common.Address) (string, error)
	Version(ctx context.Context, token common.Address) (string, error)
}

// Request carries per-call values. Fields set in Input override the
// Permitter's defaults, and Signer overrides its default signer.
type Request struct {
	Input
	Signer SigningCapability
}

// Option configures a Permitter.
type Option func(*Permitter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Permitter) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Permitter binds default parameters, a default signer and a token reader, and
// remembers the outcome of the most recent signing call for passive observers.
//
// Calls are independent: each one reads token state and resolves parameters
// on its own. When calls overlap, whichever finishes last sets LastSignature
// or LastError; callers that need ordering must serialize.
type Permitter struct {
	defaults Input
	signer   SigningCapability
	tokens   TokenReader
	logger   *zap.Logger

	mu      sync.RWMutex
	lastSig *PermitSignature
	lastErr error
}

// NewPermitter creates a Permitter. signer and tokens may be nil; signing then
// requires a per-request signer and explicit name and nonce.
func NewPermitter(defaults Input, signer SigningCapability, tokens TokenReader, opts ...Option) *Permitter {
	p := &Permitter{
		defaults: defaults,
		signer:   signer,
		tokens:   tokens,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State reads whatever the request leaves unspecified from the token: the
// name, the version and the owner's nonce. A failed version read is tolerated
// since the version falls back to "1"; failed name or nonce reads are returned.
func (p *Permitter) State(ctx context.Context, req Request) (TokenState, error) {
	in, signer := p.request(req)
	var state TokenState
	if p.tokens == nil || in.Contract == nil {
		return state, nil
	}
	token := *in.Contract

	var errs []error
	if in.ERC20Name == "" {
		name, err := p.tokens.Name(ctx, token)
		if err != nil {
			errs = append(errs, fmt.Errorf("read name: %w", err))
		}
		state.Name = name
	}
	if in.PermitVersion == "" {
		version, err := p.tokens.Version(ctx, token)
		if err != nil {
			p.logger.Debug("token version unavailable, using fallback",
				zap.String("token", token.Hex()), zap.Error(err))
		}
		state.Version = version
	}
	if in.Nonce == nil {
		owner, ok := lookupOwner(in, signer)
		if ok {
			nonce, err := p.tokens.Nonce(ctx, token, owner)
			if err != nil {
				errs = append(errs, fmt.Errorf("read nonce: %w", err))
			}
			state.Nonce = nonce
		}
	}
	return state, errors.Join(errs...)
}

// Ready reports whether a call with req could sign right now. It is evaluated
// from scratch on each call.
func (p *Permitter) Ready(ctx context.Context, req Request) error {
	in, signer := p.request(req)
	state, err := p.State(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return CheckReady(signer, in, state)
}

// SignPermit signs an EIP-2612 permit.
func (p *Permitter) SignPermit(ctx context.Context, req Request) (*PermitSignature, error) {
	return p.sign(ctx, EIP2612, req)
}

// SignDaiPermit signs a Dai-style permit.
func (p *Permitter) SignDaiPermit(ctx context.Context, req Request) (*PermitSignature, error) {
	return p.sign(ctx, Dai, req)
}

// LastSignature returns the signature from the most recent successful call.
func (p *Permitter) LastSignature() *PermitSignature {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSig
}

// LastError returns the error from the most recent failed call.
func (p *Permitter) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *Permitter) sign(ctx context.Context, d Dialect, req Request) (*PermitSignature, error) {
	sig, err := p.signOnce(ctx, d, req)

	p.mu.Lock()
	if err != nil {
		p.lastErr = err
	} else {
		p.lastSig = sig
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("permit signing failed", zap.Stringer("dialect", d), zap.Error(err))
		return nil, err
	}
	p.logger.Info("permit signed",
		zap.Stringer("dialect", d),
		zap.String("digest", sig.Hash.Hex()),
		zap.String("owner", sig.Owner.Hex()),
		zap.String("spender", sig.Spender.Hex()),
		zap.Stringer("nonce", sig.Nonce),
	)
	return sig, nil
}

func (p *Permitter) signOnce(ctx context.Context, d Dialect, req Request) (*PermitSignature, error) {
	params, _, err := p.Prepare(ctx, d, req)
	if err != nil {
		return nil, err
	}
	_, signer := p.request(req)
	return SignDialect(ctx, d, signer, params)
}

// Prepare does everything a signing call does short of asking the signer:
// it reads token state, checks readiness, resolves the parameters and builds
// the typed data. It records nothing.
func (p *Permitter) Prepare(ctx context.Context, d Dialect, req Request) (Parameters, *TypedData, error) {
	in, signer := p.request(req)

	state, err := p.State(ctx, req)
	if err != nil {
		return Parameters{}, nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	if err := CheckReady(signer, in, state); err != nil {
		return Parameters{}, nil, err
	}

	params, err := Resolve(signer, in, state)
	if err != nil {
		return Parameters{}, nil, err
	}
	td, err := Build(d, params)
	if err != nil {
		return Parameters{}, nil, err
	}
	return params, td, nil
}

func (p *Permitter) request(req Request) (Input, SigningCapability) {
	signer := req.Signer
	if signer == nil {
		signer = p.signer
	}
	return p.defaults.Merge(req.Input), signer
}

func lookupOwner(in Input, signer SigningCapability) (common.Address, bool) {
	if in.Owner != nil {
		return *in.Owner, true
	}
	if signer != nil {
		return signer.Address(), true
	}
	return common.Address{}, false
}
