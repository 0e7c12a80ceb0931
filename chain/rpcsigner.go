package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/skapa-xyz/permit"
)

var (
	_ permit.TokenReader       = (*Reader)(nil)
	_ permit.SigningCapability = (*RPCSigner)(nil)
)

// SignTypedDataMethod is the wallet RPC used to request EIP-712 signatures.
const SignTypedDataMethod = "eth_signTypedData_v4"

// RPCSigner asks a wallet or node to sign on behalf of one of its accounts.
// The request blocks until the wallet answers; there is no timeout beyond ctx.
type RPCSigner struct {
	client  *rpc.Client
	account common.Address
}

// NewRPCSigner creates a signer for account over client.
func NewRPCSigner(client *rpc.Client, account common.Address) *RPCSigner {
	return &RPCSigner{client: client, account: account}
}

// Address returns the account the wallet signs with.
func (s *RPCSigner) Address() common.Address {
	return s.account
}

// SignTypedData sends td as a JSON string, the form browser wallets expect,
// and returns the raw signature.
func (s *RPCSigner) SignTypedData(ctx context.Context, td *permit.TypedData) ([]byte, error) {
	payload, err := td.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode typed data: %w", err)
	}

	var sig hexutil.Bytes
	if err := s.client.CallContext(ctx, &sig, SignTypedDataMethod, s.account, string(payload)); err != nil {
		return nil, err
	}
	return sig, nil
}
