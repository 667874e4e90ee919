package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ParseAmount parses a decimal amount string. The empty string is zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// AmountFromBig renders a token-unit integer as a decimal string
func AmountFromBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// AddAmounts returns a+b as a decimal string
func AddAmounts(a, b string) (string, error) {
	da, err := ParseAmount(a)
	if err != nil {
		return "", err
	}
	db, err := ParseAmount(b)
	if err != nil {
		return "", err
	}
	return da.Add(db).String(), nil
}

// ReturnRatio computes winnings/investments, or "0" when nothing was invested.
func ReturnRatio(winnings, investments string) (string, error) {
	w, err := ParseAmount(winnings)
	if err != nil {
		return "", err
	}
	i, err := ParseAmount(investments)
	if err != nil {
		return "", err
	}
	if i.IsZero() {
		return "0", nil
	}
	return w.DivRound(i, 18).String(), nil
}

// CanonicalAddress is the single form addresses are stored in.
func CanonicalAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// NormalizeAddress lowercases a hex address string, returning "" for anything
// that is not a valid address.
func NormalizeAddress(s string) string {
	if !common.IsHexAddress(s) {
		return ""
	}
	return CanonicalAddress(common.HexToAddress(s))
}
