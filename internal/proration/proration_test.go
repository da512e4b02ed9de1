package proration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeUpgradeHalfwayThroughCycle(t *testing.T) {
	// $10/mo plan, 15 days into a 30-day cycle, moving to $20/mo:
	// remaining value = 10 * 0.5 = 5, due = 20 - 5 = 15.
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	paid := dec("10")

	quote := Compute(Input{
		Now:            start.AddDate(0, 0, 15),
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, 30),
		LastPaidAmount: &paid,
		CurrentPrice:   dec("10"),
		NewPrice:       dec("20"),
		Currency:       enums.CurrencyUSD,
	})

	assert.Equal(t, ChangeUpgrade, quote.Kind)
	assert.True(t, quote.AmountDue.Equal(dec("15")), "got %s", quote.AmountDue)
	assert.True(t, quote.Credit.IsZero())
}

func TestComputeUpgradeNeverChargesNegative(t *testing.T) {
	// full cycle remaining on an expensive plan moving to a cheap one priced
	// higher than current is impossible, but remaining value can still exceed
	// the new price right after payment
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	paid := dec("100")

	quote := Compute(Input{
		Now:            start,
		StartDate:      start,
		EndDate:        start.AddDate(0, 1, 0),
		LastPaidAmount: &paid,
		CurrentPrice:   dec("100"),
		NewPrice:       dec("101"),
		Currency:       enums.CurrencyUSD,
	})

	assert.Equal(t, ChangeUpgrade, quote.Kind)
	assert.True(t, quote.AmountDue.Equal(dec("1")), "got %s", quote.AmountDue)
}

func TestComputeDowngradeCarriesCredit(t *testing.T) {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)
	paid := dec("20")

	quote := Compute(Input{
		Now:            start.AddDate(0, 0, 15),
		StartDate:      start,
		EndDate:        end,
		LastPaidAmount: &paid,
		CurrentPrice:   dec("20"),
		NewPrice:       dec("5"),
		Currency:       enums.CurrencyUSD,
	})

	assert.Equal(t, ChangeDowngrade, quote.Kind)
	assert.True(t, quote.AmountDue.IsZero())
	// remaining value 10, credit = 10 - 5 = 5
	assert.True(t, quote.Credit.Equal(dec("5")), "got %s", quote.Credit)
	assert.Equal(t, end, quote.EffectiveAt)
}

func TestComputeNoCompletedPaymentIsFreshActivation(t *testing.T) {
	now := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	quote := Compute(Input{
		Now:          now,
		StartDate:    now.AddDate(0, 0, -10),
		EndDate:      now.AddDate(0, 0, 20),
		CurrentPrice: dec("10"),
		NewPrice:     dec("20"),
		Currency:     enums.CurrencyUSD,
	})

	assert.Equal(t, ChangeFreshActivation, quote.Kind)
	assert.True(t, quote.AmountDue.Equal(dec("20")))
}

func TestRemainingFractionClamps(t *testing.T) {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	assert.True(t, remainingFraction(end.AddDate(0, 0, 5), start, end).IsZero())
	assert.True(t, remainingFraction(start.AddDate(0, 0, -5), start, end).Equal(dec("1")))
	assert.True(t, remainingFraction(start, start, start).IsZero())
}

func TestComputeDowngradeZeroCreditWhenNewPriceExceedsRemaining(t *testing.T) {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	paid := dec("10")

	quote := Compute(Input{
		Now:            start.AddDate(0, 0, 29),
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, 30),
		LastPaidAmount: &paid,
		CurrentPrice:   dec("10"),
		NewPrice:       dec("10"),
		Currency:       enums.CurrencyUSD,
	})

	assert.Equal(t, ChangeDowngrade, quote.Kind)
	assert.True(t, quote.Credit.IsZero())
}
