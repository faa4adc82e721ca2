package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a creator, beneficiary, donor or custody account.
// Identities compare with exact equality; checksum casing is a display concern.
type Address = common.Address

// ZeroAddress is the null identity.
var ZeroAddress Address

// ParseAddress parses a 0x-prefixed 20-byte hex identity.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return ZeroAddress, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// IsZeroAddress reports whether a is the null identity.
func IsZeroAddress(a Address) bool {
	return a == ZeroAddress
}
