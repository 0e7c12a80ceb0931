package permit

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// PrimaryType is the EIP-712 primary type used by both permit dialects.
const PrimaryType = "Permit"

// MaxDeadline is the deadline used when none is supplied: 2^256-1, which the
// token contracts treat as "never expires".
var MaxDeadline = new(big.Int).Set(math.MaxBig256)

// Dialect selects the permit message layout a token contract expects.
type Dialect int

const (
	// EIP2612 is the standard permit(owner, spender, value, deadline, v, r, s).
	EIP2612 Dialect = iota
	// Dai is the legacy permit(holder, spender, nonce, expiry, allowed, v, r, s).
	Dai
)

func (d Dialect) String() string {
	switch d {
	case EIP2612:
		return "eip2612"
	case Dai:
		return "dai"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// ParseDialect parses the names returned by Dialect.String.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eip2612", "eip-2612", "":
		return EIP2612, nil
	case "dai":
		return Dai, nil
	default:
		return 0, fmt.Errorf("unknown permit dialect %q", s)
	}
}

var (
	domainTypes = []Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}

	eip2612Types = []Type{
		{Name: "owner", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	}

	daiTypes = []Type{
		{Name: "holder", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "expiry", Type: "uint256"},
		{Name: "allowed", Type: "bool"},
	}
)

// Domain represents the EIP-712 domain separator of a token contract
type Domain struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	ChainID           *big.Int       `json:"chainId"`
	VerifyingContract common.Address `json:"verifyingContract"`
}

// Type represents an EIP-712 type field
type Type struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Message holds the values of the primary type. Numeric values are kept as
// decimal strings so that equal inputs produce equal messages.
type Message map[string]interface{}

// TypedData is a fully assembled EIP-712 payload. It is not modified after
// construction; accessors hand out copies.
type TypedData struct {
	dialect     Dialect
	domain      Domain
	types       map[string][]Type
	primaryType string
	message     Message
}

// NewTypedData assembles typed data from its parts and validates it.
func NewTypedData(domain Domain, types map[string][]Type, primaryType string, message Message) (*TypedData, error) {
	td := &TypedData{
		domain:      copyDomain(domain),
		types:       copyTypes(types),
		primaryType: primaryType,
		message:     copyMessage(message),
	}
	if err := td.Validate(); err != nil {
		return nil, err
	}
	return td, nil
}

// BuildEIP2612 builds the typed data for a standard EIP-2612 permit.
func BuildEIP2612(p Parameters) (*TypedData, error) {
	if p.Value == nil {
		return nil, ErrMissingValue
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	return &TypedData{
		dialect:     EIP2612,
		domain:      p.domain(),
		types:       map[string][]Type{PrimaryType: eip2612Types},
		primaryType: PrimaryType,
		message: Message{
			"owner":    p.Owner.Hex(),
			"spender":  p.Spender.Hex(),
			"value":    p.Value.String(),
			"nonce":    p.Nonce.String(),
			"deadline": deadlineOrMax(p.Deadline).String(),
		},
	}, nil
}

// BuildDaiPermit builds the typed data for a Dai-style permit. The dialect has
// no amount: the holder allows the spender an unlimited allowance.
func BuildDaiPermit(p Parameters) (*TypedData, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	return &TypedData{
		dialect:     Dai,
		domain:      p.domain(),
		types:       map[string][]Type{PrimaryType: daiTypes},
		primaryType: PrimaryType,
		message: Message{
			"holder":  p.Owner.Hex(),
			"spender": p.Spender.Hex(),
			"nonce":   p.Nonce.String(),
			"expiry":  deadlineOrMax(p.Deadline).String(),
			"allowed": true,
		},
	}, nil
}

// Build dispatches to the builder for the given dialect.
func Build(d Dialect, p Parameters) (*TypedData, error) {
	switch d {
	case EIP2612:
		return BuildEIP2612(p)
	case Dai:
		return BuildDaiPermit(p)
	default:
		return nil, fmt.Errorf("%w: unknown dialect %s", ErrInvalidParameter, d)
	}
}

// Dialect returns the permit dialect the data was built for.
func (td *TypedData) Dialect() Dialect { return td.dialect }

// Domain returns a copy of the domain.
func (td *TypedData) Domain() Domain { return copyDomain(td.domain) }

// Types returns a copy of the type definitions, without EIP712Domain.
func (td *TypedData) Types() map[string][]Type { return copyTypes(td.types) }

// PrimaryType returns the name of the signed struct.
func (td *TypedData) PrimaryType() string { return td.primaryType }

// Message returns a copy of the message.
func (td *TypedData) Message() Message { return copyMessage(td.message) }

// Validate checks that the primary type is defined and that no type refers
// back to itself.
func (td *TypedData) Validate() error {
	if _, ok := td.types[td.primaryType]; !ok {
		return fmt.Errorf("primary type %q is not defined", td.primaryType)
	}
	return validateNoCycles(td.types)
}

// Hash returns the EIP-712 digest: keccak256("\x19\x01" || domainSeparator || structHash).
func (td *TypedData) Hash() (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(td.apiTypes())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// DomainSeparator returns the hash of the domain, comparable with a token's
// DOMAIN_SEPARATOR().
func (td *TypedData) DomainSeparator() (common.Hash, error) {
	data := td.apiTypes()
	sep, err := data.HashStruct("EIP712Domain", data.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(sep), nil
}

// JSON encodes the payload in the format wallets accept for eth_signTypedData_v4.
func (td *TypedData) JSON() ([]byte, error) {
	return json.Marshal(td.apiTypes())
}

// CheckDomain compares the token's on-chain domain separator with the one built
// locally. A mismatch means the name, version, chain or contract is wrong and
// the signature would be rejected.
func CheckDomain(onChain common.Hash, td *TypedData) error {
	local, err := td.DomainSeparator()
	if err != nil {
		return err
	}
	if local != onChain {
		return fmt.Errorf("%w: local %s, contract %s", ErrDomainMismatch, local.Hex(), onChain.Hex())
	}
	return nil
}

func (td *TypedData) apiTypes() apitypes.TypedData {
	data := apitypes.TypedData{
		Types:       make(apitypes.Types, len(td.types)+1),
		PrimaryType: td.primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              td.domain.Name,
			Version:           td.domain.Version,
			VerifyingContract: td.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage(copyMessage(td.message)),
	}
	if td.domain.ChainID != nil {
		data.Domain.ChainId = (*math.HexOrDecimal256)(new(big.Int).Set(td.domain.ChainID))
	}

	for typeName, fields := range td.types {
		data.Types[typeName] = toAPIFields(fields)
	}
	if _, ok := data.Types["EIP712Domain"]; !ok {
		data.Types["EIP712Domain"] = toAPIFields(domainTypes)
	}
	return data
}

func toAPIFields(fields []Type) []apitypes.Type {
	out := make([]apitypes.Type, len(fields))
	for i, field := range fields {
		out[i] = apitypes.Type{Name: field.Name, Type: field.Type}
	}
	return out
}

func deadlineOrMax(deadline *big.Int) *big.Int {
	if deadline == nil {
		return MaxDeadline
	}
	return deadline
}

func copyDomain(d Domain) Domain {
	if d.ChainID != nil {
		d.ChainID = new(big.Int).Set(d.ChainID)
	}
	return d
}

func copyTypes(types map[string][]Type) map[string][]Type {
	out := make(map[string][]Type, len(types))
	for name, fields := range types {
		out[name] = append([]Type(nil), fields...)
	}
	return out
}

func copyMessage(m Message) Message {
	out := make(Message, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// validateNoCycles checks for cyclic references in type definitions
func validateNoCycles(types map[string][]Type) error {
	visited := make(map[string]bool)
	inPath := make(map[string]bool)

	for typeName := range types {
		if err := checkCycle(typeName, types, visited, inPath); err != nil {
			return err
		}
	}
	return nil
}

// checkCycle performs DFS to detect cycles in type definitions
func checkCycle(typeName string, types map[string][]Type, visited, inPath map[string]bool) error {
	if inPath[typeName] {
		return fmt.Errorf("cyclic reference detected in type: %s", typeName)
	}
	if visited[typeName] {
		return nil
	}

	visited[typeName] = true
	inPath[typeName] = true

	for _, field := range types[typeName] {
		baseType := strings.TrimSuffix(field.Type, "[]")
		if _, isCustom := types[baseType]; isCustom {
			if err := checkCycle(baseType, types, visited, inPath); err != nil {
				return err
			}
		}
	}

	inPath[typeName] = false
	return nil
}
