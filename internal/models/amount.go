package models

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// WeiPerEther is the number of base units in one ether.
var WeiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var errInvalidAmount = errors.New("invalid amount")

// maxAmountLen bounds decimal input; 2^256 wei has 78 digits.
const maxAmountLen = 100

// ParseEther converts a decimal ether string such as "0.01" into wei. Only
// plain decimal notation is accepted.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if !isDecimal(s) {
		return nil, fmt.Errorf("%w: %q is not a decimal number", errInvalidAmount, truncate(s))
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errInvalidAmount, s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", errInvalidAmount, s)
	}
	r.Mul(r, new(big.Rat).SetInt(WeiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("%w: %q has more than 18 decimals", errInvalidAmount, s)
	}
	return new(big.Int).Set(r.Num()), nil
}

// ParseWei parses a base-10 wei amount.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if len(s) > maxAmountLen {
		return nil, fmt.Errorf("%w: %q is too long", errInvalidAmount, truncate(s))
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", errInvalidAmount, s)
	}
	return v, nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	s := new(big.Rat).SetFrac(wei, WeiPerEther).FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// isDecimal accepts digits with at most one decimal point, optionally negative.
func isDecimal(s string) bool {
	if s == "" || len(s) > maxAmountLen {
		return false
	}
	s = strings.TrimPrefix(s, "-")
	digits, dots := 0, 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

func truncate(s string) string {
	if len(s) > 20 {
		return s[:20] + "..."
	}
	return s
}
