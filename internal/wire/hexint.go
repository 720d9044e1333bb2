package wire

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseHexBigInt parses a hex-encoded big integer, accepting both a bare hex
// string and one with a "0x"/"0X" prefix.
func ParseHexBigInt(s string) (*big.Int, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("wire: empty hex integer")
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("wire: invalid hex integer %q", s)
	}
	return n, nil
}

// FormatHexBigInt renders a big integer as a "0x"-prefixed hex string, the
// form the wire format requires for server-originated challenge/response
// values.
func FormatHexBigInt(n *big.Int) string {
	return "0x" + n.Text(16)
}
