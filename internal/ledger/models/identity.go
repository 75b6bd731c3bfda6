package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RequestID is the ledger-assigned verification request identifier.
type RequestID uint64

// TokenID is the ledger-assigned credential token identifier.
type TokenID uint64

// EpochID identifies an election epoch (voting round).
type EpochID uint64

// String renders the request ID in decimal.
func (id RequestID) String() string { return strconv.FormatUint(uint64(id), 10) }

// String renders the token ID in decimal.
func (id TokenID) String() string { return strconv.FormatUint(uint64(id), 10) }

// String renders the epoch ID in decimal.
func (id EpochID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseRequestID parses a decimal request identifier.
func ParseRequestID(value string) (RequestID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid request id %q", value)
	}
	return RequestID(n), nil
}

// ParseTokenID parses a decimal token identifier.
func ParseTokenID(value string) (TokenID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q", value)
	}
	return TokenID(n), nil
}

// ParseEpochID parses a decimal epoch identifier.
func ParseEpochID(value string) (EpochID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid epoch %q", value)
	}
	return EpochID(n), nil
}

// ParseAccount parses a hex account identifier. Comparison is case-insensitive
// because the result is the 20 raw address bytes, not the input string.
func ParseAccount(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid account %q", value)
	}
	return common.HexToAddress(value), nil
}

// Role is a bytes32 access-control role identifier.
type Role = common.Hash

// DefaultAdminRole is the zero role, as in OpenZeppelin AccessControl.
var DefaultAdminRole = Role{}

var knownRoles = map[Role]string{DefaultAdminRole: "DEFAULT_ADMIN_ROLE"}

func init() {
	for _, name := range []string{"ADMIN_ROLE", "ISSUER_ROLE", "FINALIZER_ROLE", "MINTER_ROLE", "REVOKER_ROLE"} {
		knownRoles[crypto.Keccak256Hash([]byte(name))] = name
	}
}

// ParseRole accepts either a 0x-prefixed bytes32 hex value or a role name,
// which is hashed with keccak256 the way the contract derives it.
func ParseRole(value string) (Role, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "" || value == "DEFAULT_ADMIN_ROLE":
		return DefaultAdminRole, nil
	case strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X"):
		raw, err := hexutil.Decode(value)
		if err != nil || len(raw) != common.HashLength {
			return Role{}, fmt.Errorf("invalid role %q", value)
		}
		return common.BytesToHash(raw), nil
	default:
		return crypto.Keccak256Hash([]byte(value)), nil
	}
}

// RoleName returns the human name of a well-known role, or its hex form.
func RoleName(r Role) string {
	if name, ok := knownRoles[r]; ok {
		return name
	}
	return r.Hex()
}

// Quantity is an unsigned integer that decodes from a JSON number, a decimal
// string or a 0x-prefixed hex string. Indexers disagree on big-number encoding.
type Quantity uint64

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.HasPrefix(s, "0x") {
			n, err := hexutil.DecodeUint64(s)
			if err != nil {
				return fmt.Errorf("invalid quantity %q", s)
			}
			*q = Quantity(n)
			return nil
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid quantity %q", s)
		}
		*q = Quantity(n)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid quantity %s", string(data))
	}
	*q = Quantity(n)
	return nil
}
