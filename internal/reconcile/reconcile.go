package reconcile

import (
	"github.com/shopspring/decimal"

	dbtypes "github.com/nikhilbhat/subwise-backend/pkg/db/types"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	"github.com/nikhilbhat/subwise-backend/pkg/money"
)

// authTolerancePct is how close a mis-currency report must be to a known plan
// price before it is treated as a mis-tagged authentication charge.
var authTolerancePct = decimal.RequireFromString("5")

// nominalAuthAmounts are the provider's standard verification charges. A
// normalized authentication charge is recorded at this amount, never at the
// plan's full price.
var nominalAuthAmounts = map[enums.Currency]decimal.Decimal{
	enums.CurrencyINR: decimal.NewFromInt(1),
	enums.CurrencyUSD: decimal.RequireFromString("0.50"),
	enums.CurrencyEUR: decimal.RequireFromString("0.50"),
	enums.CurrencyJPY: decimal.NewFromInt(50),
}

// KnownPrice is a candidate plan price used for authentication-charge
// detection.
type KnownPrice struct {
	PlanID string
	Amount decimal.Decimal
}

// Input is one reported charge plus the pricing context needed to check it.
// ReportedAmount is already a decimal in major units; the adapter converts
// from gateway minor units before reconciliation runs.
type Input struct {
	ReportedAmount   decimal.Decimal
	ReportedCurrency enums.Currency
	Region           enums.Region
	PlanPrice        decimal.Decimal
	KnownPrices      []KnownPrice
}

// Outcome is what the ledger should store for the charge. Annotations carry
// the audit trail when the reported values were not trusted.
type Outcome struct {
	Amount      decimal.Decimal
	Currency    enums.Currency
	Annotations dbtypes.TransactionAnnotations
}

// ReconcileCharge applies the currency/pricing rules before any ledger write.
// A report in the expected currency passes through untouched. A report in the
// wrong currency is never stored as-is: it either normalizes to the nominal
// authentication amount (when it tracks a known plan price within tolerance)
// or is replaced by the plan's configured price for the region.
func ReconcileCharge(in Input) Outcome {
	expected := in.Region.ExpectedCurrency()

	if in.ReportedCurrency == expected {
		return Outcome{
			Amount:   money.Normalize(in.ReportedAmount, expected),
			Currency: expected,
		}
	}

	if matched, ok := matchAuthCharge(in.ReportedAmount, in.KnownPrices); ok {
		return Outcome{
			Amount:   nominalAuthAmount(expected),
			Currency: expected,
			Annotations: dbtypes.TransactionAnnotations{
				AuthNormalized: &dbtypes.AuthNormalized{
					ReportedCurrency: in.ReportedCurrency,
					ReportedAmount:   in.ReportedAmount,
					MatchedPlanID:    matched,
				},
			},
		}
	}

	return Outcome{
		Amount:   money.Normalize(in.PlanPrice, expected),
		Currency: expected,
		Annotations: dbtypes.TransactionAnnotations{
			CurrencyMismatch: &dbtypes.CurrencyMismatch{
				ExpectedCurrency: expected,
				ReportedCurrency: in.ReportedCurrency,
				ReportedAmount:   in.ReportedAmount,
			},
		},
	}
}

func matchAuthCharge(reported decimal.Decimal, prices []KnownPrice) (string, bool) {
	for _, price := range prices {
		if price.Amount.IsZero() {
			continue
		}
		if money.WithinPercent(reported, price.Amount, authTolerancePct) {
			return price.PlanID, true
		}
	}
	return "", false
}

func nominalAuthAmount(currency enums.Currency) decimal.Decimal {
	if amount, ok := nominalAuthAmounts[currency]; ok {
		return amount
	}
	return decimal.NewFromInt(1)
}
