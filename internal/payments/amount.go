package payments

import (
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

var (
	lamportsPerSOL = decimal.New(1, 9)
	tolerance      = decimal.New(1, -2) // 1%
)

// SOLToLamports converts a SOL amount to lamports.
func SOLToLamports(sol decimal.Decimal) decimal.Decimal {
	return sol.Mul(lamportsPerSOL)
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports int64) decimal.Decimal {
	return decimal.NewFromInt(lamports).Div(lamportsPerSOL)
}

// WithinTolerance reports whether actual is within 1% of expected, both in lamports.
func WithinTolerance(actual, expected decimal.Decimal) bool {
	if !expected.IsPositive() {
		return false
	}
	return actual.Sub(expected).Abs().LessThanOrEqual(expected.Mul(tolerance))
}

// ValidAddress reports whether s is a base58 encoded 32-byte public key.
func ValidAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}
