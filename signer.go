package permit

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is a SigningCapability backed by a private key held in memory.
//
// Security Notes:
//   - Private keys are stored in memory and not zeroed after use
//   - Signing never prompts: use it for services and tests, not for user wallets
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a signer from a hex-encoded private key
//
// Example:
//
//	signer, err := NewSigner("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(signer.Address()) // 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266
func NewSigner(privateKeyHex string) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// NewSignerFromKeystore creates a signer from an encrypted keystore file
func NewSignerFromKeystore(keystoreJSON []byte, password string) (*Signer, error) {
	key, err := keystore.DecryptKey(keystoreJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
	}

	return &Signer{
		privateKey: key.PrivateKey,
		address:    key.Address,
	}, nil
}

// Address returns the signer's Ethereum address
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTypedData signs the EIP-712 digest of td and returns r||s||v with v in
// {27, 28}.
func (s *Signer) SignTypedData(ctx context.Context, td *TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := td.Hash()
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(hash[:], s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Transform V from 0/1 to 27/28 per Ethereum convention
	signature[64] += 27
	return signature, nil
}
