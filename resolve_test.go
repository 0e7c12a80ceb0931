package permit

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func testInput() Input {
	return Input{
		ChainID:  big.NewInt(1),
		Contract: addr(usdcAddress),
		Spender:  addr(testAddress2),
		Value:    big.NewInt(1000000),
	}
}

func TestResolveOwner(t *testing.T) {
	signer := newTestSigner(t, testPrivateKey1)
	state := TokenState{Name: "USD Coin", Nonce: big.NewInt(0)}

	t.Run("explicit owner wins", func(t *testing.T) {
		in := testInput()
		in.Owner = addr(testAddress2)
		p, err := Resolve(signer, in, state)
		require.NoError(t, err)
		require.Equal(t, common.HexToAddress(testAddress2), p.Owner)
	})

	t.Run("signer address is the fallback", func(t *testing.T) {
		p, err := Resolve(signer, testInput(), state)
		require.NoError(t, err)
		require.Equal(t, signer.Address(), p.Owner)
	})

	t.Run("no owner and no signer", func(t *testing.T) {
		_, err := Resolve(nil, testInput(), state)
		require.ErrorIs(t, err, ErrMissingOwner)
	})

	t.Run("zero owner is rejected", func(t *testing.T) {
		in := testInput()
		in.Owner = &common.Address{}
		_, err := Resolve(signer, in, state)
		require.ErrorIs(t, err, ErrMissingOwner)
	})
}

func TestResolveSpenderDefaultsToZeroAddress(t *testing.T) {
	in := testInput()
	in.Spender = nil

	p, err := Resolve(newTestSigner(t, testPrivateKey1), in, TokenState{Name: "USD Coin", Nonce: big.NewInt(0)})
	require.NoError(t, err)
	require.Equal(t, common.Address{}, p.Spender)
	require.NotEqual(t, common.Address{}, p.Owner)
}

func TestResolveVersion(t *testing.T) {
	signer := newTestSigner(t, testPrivateKey1)

	testCases := []struct {
		name     string
		explicit string
		onChain  string
		want     string
	}{
		{name: "explicit", explicit: "3", onChain: "2", want: "3"},
		{name: "on-chain", onChain: "2", want: "2"},
		{name: "fallback", want: "1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := testInput()
			in.PermitVersion = tc.explicit
			p, err := Resolve(signer, in, TokenState{Name: "USD Coin", Version: tc.onChain, Nonce: big.NewInt(0)})
			require.NoError(t, err)
			require.Equal(t, tc.want, p.PermitVersion)
		})
	}
}

func TestResolveNameAndNonce(t *testing.T) {
	signer := newTestSigner(t, testPrivateKey1)
	state := TokenState{Name: "USD Coin", Nonce: big.NewInt(7)}

	p, err := Resolve(signer, testInput(), state)
	require.NoError(t, err)
	require.Equal(t, "USD Coin", p.ERC20Name)
	require.Equal(t, int64(7), p.Nonce.Int64())

	in := testInput()
	in.ERC20Name = "Bridged USDC"
	in.Nonce = big.NewInt(9)
	p, err = Resolve(signer, in, state)
	require.NoError(t, err)
	require.Equal(t, "Bridged USDC", p.ERC20Name)
	require.Equal(t, int64(9), p.Nonce.Int64())
}

func TestResolveDeadline(t *testing.T) {
	signer := newTestSigner(t, testPrivateKey1)
	state := TokenState{Name: "USD Coin", Nonce: big.NewInt(0)}

	p, err := Resolve(signer, testInput(), state)
	require.NoError(t, err)
	require.Equal(t, maxUint256, p.Deadline.String())

	// The sentinel is copied, not shared.
	p.Deadline.SetInt64(0)
	require.Equal(t, maxUint256, MaxDeadline.String())
}

func TestResolveMissingFields(t *testing.T) {
	signer := newTestSigner(t, testPrivateKey1)

	testCases := []struct {
		name   string
		modify func(in *Input, state *TokenState)
		field  string
	}{
		{name: "chain id", modify: func(in *Input, _ *TokenState) { in.ChainID = nil }, field: "chainId"},
		{name: "contract", modify: func(in *Input, _ *TokenState) { in.Contract = nil }, field: "contract"},
		{name: "name", modify: func(_ *Input, s *TokenState) { s.Name = "" }, field: "erc20Name"},
		{name: "nonce", modify: func(_ *Input, s *TokenState) { s.Nonce = nil }, field: "nonce"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := testInput()
			state := TokenState{Name: "USD Coin", Nonce: big.NewInt(0)}
			tc.modify(&in, &state)

			_, err := Resolve(signer, in, state)
			require.ErrorIs(t, err, ErrNotReady)
			require.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestResolveRejectsOutOfRangeNumbers(t *testing.T) {
	signer := newTestSigner(t, testPrivateKey1)
	state := TokenState{Name: "USD Coin", Nonce: big.NewInt(0)}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)

	for name, modify := range map[string]func(in *Input){
		"value":    func(in *Input) { in.Value = tooBig },
		"deadline": func(in *Input) { in.Deadline = tooBig },
		"nonce":    func(in *Input) { in.Nonce = big.NewInt(-1) },
		"chainId":  func(in *Input) { in.ChainID = big.NewInt(-5) },
	} {
		t.Run(name, func(t *testing.T) {
			in := testInput()
			modify(&in)
			_, err := Resolve(signer, in, state)
			require.ErrorIs(t, err, ErrInvalidParameter)
			require.Contains(t, err.Error(), name)
		})
	}
}

func TestCheckReady(t *testing.T) {
	signer := newTestSigner(t, testPrivateKey1)
	state := TokenState{Name: "USD Coin", Nonce: big.NewInt(0)}

	require.NoError(t, CheckReady(signer, testInput(), state))

	// Explicit name and nonce make token state unnecessary.
	in := testInput()
	in.ERC20Name = "USD Coin"
	in.Nonce = big.NewInt(1)
	require.NoError(t, CheckReady(signer, in, TokenState{}))

	testCases := []struct {
		name   string
		signer SigningCapability
		modify func(in *Input, state *TokenState)
		field  string
	}{
		{name: "signer", modify: func(*Input, *TokenState) {}, field: "signer"},
		{name: "spender", signer: signer, modify: func(in *Input, _ *TokenState) { in.Spender = nil }, field: "spender"},
		{name: "chain id", signer: signer, modify: func(in *Input, _ *TokenState) { in.ChainID = nil }, field: "chainId"},
		{name: "contract", signer: signer, modify: func(in *Input, _ *TokenState) { in.Contract = nil }, field: "contract"},
		{name: "name", signer: signer, modify: func(_ *Input, s *TokenState) { s.Name = "" }, field: "erc20Name"},
		{name: "nonce", signer: signer, modify: func(_ *Input, s *TokenState) { s.Nonce = nil }, field: "nonce"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := testInput()
			st := state
			tc.modify(&in, &st)

			err := CheckReady(tc.signer, in, st)
			require.ErrorIs(t, err, ErrNotReady)
			require.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestCheckReadyListsEveryMissingField(t *testing.T) {
	err := CheckReady(nil, Input{}, TokenState{})
	require.ErrorIs(t, err, ErrNotReady)
	for _, field := range []string{"signer", "spender", "chainId", "contract", "erc20Name", "nonce"} {
		require.Contains(t, err.Error(), field)
	}
}

func TestInputMerge(t *testing.T) {
	defaults := Input{
		ChainID:       big.NewInt(1),
		Contract:      addr(usdcAddress),
		Spender:       addr(testAddress2),
		PermitVersion: "2",
	}
	override := Input{
		Spender:   addr(testAddress1),
		Value:     big.NewInt(5),
		ERC20Name: "USD Coin",
	}

	merged := defaults.Merge(override)
	require.Equal(t, big.NewInt(1), merged.ChainID)
	require.Equal(t, common.HexToAddress(usdcAddress), *merged.Contract)
	require.Equal(t, common.HexToAddress(testAddress1), *merged.Spender)
	require.Equal(t, big.NewInt(5), merged.Value)
	require.Equal(t, "USD Coin", merged.ERC20Name)
	require.Equal(t, "2", merged.PermitVersion)
	require.Nil(t, merged.Owner)

	// defaults are untouched
	require.Equal(t, common.HexToAddress(testAddress2), *defaults.Spender)
	require.Nil(t, defaults.Value)
}

func TestParametersInputRoundTrip(t *testing.T) {
	params := testParameters()
	got, err := Resolve(nil, params.Input(), TokenState{})
	require.NoError(t, err)
	require.Equal(t, params, got)
}
