package permit

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// Test constants
const (
	testPrivateKey1 = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testPrivateKey2 = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testAddress1    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testAddress2    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	usdcAddress = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	daiAddress  = "0x6B175474E89094C44Da98b954EedeAC495271d0F"

	maxUint256 = "115792089237316195423570985008687907853269984665640564039457584007913129639935"
)

var errUserRejected = errors.New("user rejected the request")

func addr(hex string) *common.Address {
	a := common.HexToAddress(hex)
	return &a
}

func newTestSigner(t *testing.T, key string) *Signer {
	t.Helper()
	signer, err := NewSigner(key)
	require.NoError(t, err)
	return signer
}

// testParameters returns resolved parameters for a USDC-like token.
func testParameters() Parameters {
	return Parameters{
		ChainID:       big.NewInt(1),
		Contract:      common.HexToAddress(usdcAddress),
		Owner:         common.HexToAddress(testAddress1),
		Spender:       common.HexToAddress(testAddress2),
		Value:         big.NewInt(1000000),
		Nonce:         big.NewInt(3),
		Deadline:      big.NewInt(1893456000),
		ERC20Name:     "USD Coin",
		PermitVersion: "2",
	}
}

func assertSignatureComponents(t *testing.T, sig *PermitSignature) {
	t.Helper()
	require.NotNil(t, sig)
	require.True(t, sig.V == 27 || sig.V == 28, "V should be 27 or 28")
	require.NotEqual(t, common.Hash{}, sig.R)
	require.NotEqual(t, common.Hash{}, sig.S)
	require.NotEqual(t, common.Hash{}, sig.Hash)
	require.Len(t, sig.Bytes(), 65)
}

// stubSigner returns a fixed response and counts calls.
type stubSigner struct {
	address common.Address
	sig     []byte
	err     error
	calls   atomic.Int32
}

func (s *stubSigner) Address() common.Address { return s.address }

func (s *stubSigner) SignTypedData(ctx context.Context, td *TypedData) ([]byte, error) {
	s.calls.Add(1)
	return s.sig, s.err
}

// fakeTokens is an in-memory TokenReader.
type fakeTokens struct {
	mu         sync.Mutex
	name       string
	version    string
	nonces     map[common.Address]*big.Int
	nameErr    error
	versionErr error
	nonceErr   error
	nonceReads int
}

func newFakeTokens(name, version string) *fakeTokens {
	return &fakeTokens{
		name:    name,
		version: version,
		nonces:  make(map[common.Address]*big.Int),
	}
}

func (f *fakeTokens) Name(ctx context.Context, token common.Address) (string, error) {
	if f.nameErr != nil {
		return "", f.nameErr
	}
	return f.name, nil
}

func (f *fakeTokens) Version(ctx context.Context, token common.Address) (string, error) {
	if f.versionErr != nil {
		return "", f.versionErr
	}
	return f.version, nil
}

func (f *fakeTokens) Nonce(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceReads++
	if f.nonceErr != nil {
		return nil, f.nonceErr
	}
	if n, ok := f.nonces[owner]; ok {
		return new(big.Int).Set(n), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeTokens) setNonce(owner string, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[common.HexToAddress(owner)] = big.NewInt(n)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
