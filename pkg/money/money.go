package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// The ledger stores exact decimals; gateway wire formats use integer minor
// units. Conversion happens only at the adapter boundary, through this
// package.

// Exponent returns the number of decimal places the currency carries.
func Exponent(currency enums.Currency) int32 {
	switch currency {
	case enums.CurrencyJPY:
		return 0
	default:
		return 2
	}
}

// Normalize rounds the amount to the currency's exponent.
func Normalize(amount decimal.Decimal, currency enums.Currency) decimal.Decimal {
	return amount.Round(Exponent(currency))
}

// ToMinorUnits converts a decimal amount into the gateway's integer minor
// units (paise, cents). Fails on negative amounts so a bad sign never
// reaches the provider.
func ToMinorUnits(amount decimal.Decimal, currency enums.Currency) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount %s must be non-negative", amount)
	}
	return Normalize(amount, currency).Shift(Exponent(currency)).IntPart(), nil
}

// FromMinorUnits converts gateway minor units back into a ledger decimal.
func FromMinorUnits(minor int64, currency enums.Currency) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-Exponent(currency))
}

// WithinPercent reports whether candidate is within pct percent of target.
// Used by the reconciler to spot mis-tagged authentication charges.
func WithinPercent(candidate, target decimal.Decimal, pct decimal.Decimal) bool {
	if target.IsZero() {
		return candidate.IsZero()
	}
	diff := candidate.Sub(target).Abs()
	tolerance := target.Abs().Mul(pct).Div(decimal.NewFromInt(100))
	return diff.LessThanOrEqual(tolerance)
}
