package proration

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	"github.com/nikhilbhat/subwise-backend/pkg/money"
)

// ChangeKind classifies a mid-cycle plan change.
type ChangeKind string

const (
	// ChangeFreshActivation means no completed payment exists on the current
	// subscription, so the change is priced as a brand new activation.
	ChangeFreshActivation ChangeKind = "fresh_activation"
	ChangeUpgrade         ChangeKind = "upgrade"
	ChangeDowngrade       ChangeKind = "downgrade"
)

// Input carries everything the calculator needs. LastPaidAmount is nil when
// the current subscription has no COMPLETED transaction.
type Input struct {
	Now            time.Time
	StartDate      time.Time
	EndDate        time.Time
	LastPaidAmount *decimal.Decimal
	CurrentPrice   decimal.Decimal
	NewPrice       decimal.Decimal
	Currency       enums.Currency
}

// Quote is the outcome of a plan-change computation. Upgrades charge
// AmountDue immediately; downgrades carry Credit into the next cycle and the
// switch itself waits until EffectiveAt (the current cycle's end).
type Quote struct {
	Kind              ChangeKind
	RemainingFraction decimal.Decimal
	RemainingValue    decimal.Decimal
	AmountDue         decimal.Decimal
	Credit            decimal.Decimal
	EffectiveAt       time.Time
}

// Compute prices a plan change from time remaining in the current cycle.
func Compute(in Input) Quote {
	if in.LastPaidAmount == nil {
		return Quote{
			Kind:        ChangeFreshActivation,
			AmountDue:   money.Normalize(in.NewPrice, in.Currency),
			Credit:      decimal.Zero,
			EffectiveAt: in.Now,
		}
	}

	fraction := remainingFraction(in.Now, in.StartDate, in.EndDate)
	remainingValue := in.LastPaidAmount.Mul(fraction)

	if in.NewPrice.GreaterThan(in.CurrentPrice) {
		due := in.NewPrice.Sub(remainingValue)
		if due.IsNegative() {
			due = decimal.Zero
		}
		return Quote{
			Kind:              ChangeUpgrade,
			RemainingFraction: fraction,
			RemainingValue:    remainingValue,
			AmountDue:         money.Normalize(due, in.Currency),
			Credit:            decimal.Zero,
			EffectiveAt:       in.Now,
		}
	}

	credit := remainingValue.Sub(in.NewPrice)
	if credit.IsNegative() {
		credit = decimal.Zero
	}
	return Quote{
		Kind:              ChangeDowngrade,
		RemainingFraction: fraction,
		RemainingValue:    remainingValue,
		AmountDue:         decimal.Zero,
		Credit:            money.Normalize(credit, in.Currency),
		EffectiveAt:       in.EndDate,
	}
}

// remainingFraction is (end - now) / (end - start), clamped to [0, 1].
func remainingFraction(now, start, end time.Time) decimal.Decimal {
	total := end.Sub(start)
	if total <= 0 {
		return decimal.Zero
	}
	remaining := end.Sub(now)
	if remaining <= 0 {
		return decimal.Zero
	}
	if remaining >= total {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(remaining)).Div(decimal.NewFromInt(int64(total)))
}
