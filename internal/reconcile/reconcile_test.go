package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestReconcileMatchingCurrencyPassesThrough(t *testing.T) {
	out := ReconcileCharge(Input{
		ReportedAmount:   dec("1499"),
		ReportedCurrency: enums.CurrencyINR,
		Region:           enums.RegionIndia,
		PlanPrice:        dec("1499"),
	})

	assert.Equal(t, enums.CurrencyINR, out.Currency)
	assert.True(t, out.Amount.Equal(dec("1499")))
	assert.True(t, out.Annotations.IsZero())
}

func TestReconcileWrongCurrencyUsesPlanPrice(t *testing.T) {
	// gateway reports 999 in USD for an Indian subscriber whose plan costs
	// 1499 INR: store 1499 INR with a mismatch annotation, never 999 USD.
	out := ReconcileCharge(Input{
		ReportedAmount:   dec("999"),
		ReportedCurrency: enums.CurrencyUSD,
		Region:           enums.RegionIndia,
		PlanPrice:        dec("1499"),
	})

	assert.Equal(t, enums.CurrencyINR, out.Currency)
	assert.True(t, out.Amount.Equal(dec("1499")), "got %s", out.Amount)

	mismatch := out.Annotations.CurrencyMismatch
	require.NotNil(t, mismatch)
	assert.Equal(t, enums.CurrencyINR, mismatch.ExpectedCurrency)
	assert.Equal(t, enums.CurrencyUSD, mismatch.ReportedCurrency)
	assert.True(t, mismatch.ReportedAmount.Equal(dec("999")))
}

func TestReconcileAuthChargeNormalized(t *testing.T) {
	// a wrong-currency report within 5% of a known plan price is a mis-tagged
	// authentication charge, recorded at the nominal verification amount
	out := ReconcileCharge(Input{
		ReportedAmount:   dec("1460"),
		ReportedCurrency: enums.CurrencyUSD,
		Region:           enums.RegionIndia,
		PlanPrice:        dec("1499"),
		KnownPrices: []KnownPrice{
			{PlanID: "pro-monthly", Amount: dec("1499")},
		},
	})

	assert.Equal(t, enums.CurrencyINR, out.Currency)
	assert.True(t, out.Amount.Equal(dec("1")), "got %s", out.Amount)

	auth := out.Annotations.AuthNormalized
	require.NotNil(t, auth)
	assert.Equal(t, "pro-monthly", auth.MatchedPlanID)
	assert.True(t, auth.ReportedAmount.Equal(dec("1460")))
}

func TestReconcileAuthDetectionRespectsTolerance(t *testing.T) {
	out := ReconcileCharge(Input{
		ReportedAmount:   dec("1300"),
		ReportedCurrency: enums.CurrencyUSD,
		Region:           enums.RegionIndia,
		PlanPrice:        dec("1499"),
		KnownPrices: []KnownPrice{
			{PlanID: "pro-monthly", Amount: dec("1499")},
		},
	})

	// 1300 is more than 5% away from 1499, so it is a plain mismatch
	assert.Nil(t, out.Annotations.AuthNormalized)
	require.NotNil(t, out.Annotations.CurrencyMismatch)
	assert.True(t, out.Amount.Equal(dec("1499")))
}

func TestReconcileDefaultCurrencyRegions(t *testing.T) {
	for _, region := range []enums.Region{enums.RegionUS, enums.RegionEU, enums.RegionGlobal} {
		out := ReconcileCharge(Input{
			ReportedAmount:   dec("19.99"),
			ReportedCurrency: enums.CurrencyUSD,
			Region:           region,
			PlanPrice:        dec("19.99"),
		})
		assert.Equal(t, enums.CurrencyUSD, out.Currency, "region %s", region)
		assert.True(t, out.Annotations.IsZero(), "region %s", region)
	}
}
