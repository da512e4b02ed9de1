package lifecycle

import (
	"fmt"
	"time"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Snapshot is the slice of subscription state the pure transition logic
// reads. It never touches the database.
type Snapshot struct {
	Status       enums.SubscriptionStatus
	StartDate    time.Time
	EndDate      time.Time
	AutoRenew    bool
	BillingCycle enums.BillingCycle
}

// Outcome lists the field changes a transition produces. Nil pointers mean
// "leave unchanged"; NoOp means the event requires no write at all.
type Outcome struct {
	NoOp           bool
	Status         enums.SubscriptionStatus
	StartDate      *time.Time
	EndDate        *time.Time
	AutoRenew      *bool
	GracePeriodEnd *time.Time
	ClearGrace     bool
}

// TransitionParams tunes the grace windows. Halted gets a longer window than
// pending/failed because halted signals repeated payment failures.
type TransitionParams struct {
	GraceDays       int
	HaltedGraceDays int
}

// DefaultTransitionParams mirrors the production configuration defaults.
func DefaultTransitionParams() TransitionParams {
	return TransitionParams{GraceDays: 7, HaltedGraceDays: 14}
}

// Transition computes the effect of a gateway business event on a
// subscription. Transitions targeting the already-current status collapse to
// no-ops, which keeps duplicate business events harmless independently of
// the webhook-level idempotency guard. GatewayCycleEnd carries the
// authoritative cycle end for *updated* events; it is ignored otherwise.
func Transition(
	sub Snapshot,
	event enums.WebhookEventType,
	now time.Time,
	gatewayCycleEnd *time.Time,
	params TransitionParams,
) (Outcome, error) {
	if sub.Status.IsTerminal() {
		return Outcome{NoOp: true, Status: sub.Status}, nil
	}

	boolPtr := func(v bool) *bool { return &v }
	timePtr := func(v time.Time) *time.Time { return &v }

	switch event {
	case enums.WebhookEventSubscriptionAuthenticated,
		enums.WebhookEventSubscriptionActivated,
		enums.WebhookEventPaymentAuthorized,
		enums.WebhookEventPaymentCaptured:
		if sub.Status == enums.SubscriptionStatusActive {
			return Outcome{NoOp: true, Status: sub.Status}, nil
		}
		return Outcome{Status: enums.SubscriptionStatusActive, ClearGrace: true}, nil

	case enums.WebhookEventSubscriptionCharged:
		start := sub.EndDate
		if start.IsZero() || start.After(now.AddDate(1, 0, 0)) {
			start = now
		}
		end := NextPeriodEnd(start, sub.BillingCycle)
		return Outcome{
			Status:     enums.SubscriptionStatusActive,
			StartDate:  timePtr(start),
			EndDate:    timePtr(end),
			ClearGrace: true,
		}, nil

	case enums.WebhookEventPaymentFailed:
		if sub.Status == enums.SubscriptionStatusActive && now.After(sub.EndDate) {
			return Outcome{
				Status:         enums.SubscriptionStatusGracePeriod,
				GracePeriodEnd: timePtr(now.AddDate(0, 0, params.GraceDays)),
			}, nil
		}
		return Outcome{NoOp: true, Status: sub.Status}, nil

	case enums.WebhookEventSubscriptionPending:
		if sub.Status == enums.SubscriptionStatusGracePeriod {
			return Outcome{NoOp: true, Status: sub.Status}, nil
		}
		return Outcome{
			Status:         enums.SubscriptionStatusGracePeriod,
			GracePeriodEnd: timePtr(now.AddDate(0, 0, params.GraceDays)),
		}, nil

	case enums.WebhookEventSubscriptionHalted:
		return Outcome{
			Status:         enums.SubscriptionStatusGracePeriod,
			GracePeriodEnd: timePtr(now.AddDate(0, 0, params.HaltedGraceDays)),
		}, nil

	case enums.WebhookEventSubscriptionCancelled:
		return Outcome{
			Status:    enums.SubscriptionStatusCancelled,
			AutoRenew: boolPtr(false),
		}, nil

	case enums.WebhookEventSubscriptionCompleted:
		return Outcome{
			Status:    enums.SubscriptionStatusExpired,
			AutoRenew: boolPtr(false),
		}, nil

	case enums.WebhookEventSubscriptionUpdated:
		if gatewayCycleEnd == nil || gatewayCycleEnd.IsZero() {
			return Outcome{NoOp: true, Status: sub.Status}, nil
		}
		return Outcome{
			Status:  sub.Status,
			EndDate: timePtr(gatewayCycleEnd.UTC()),
		}, nil

	case enums.WebhookEventSubscriptionPaused:
		// mandate paused at the gateway; local entitlement runs out on its own
		return Outcome{NoOp: true, Status: sub.Status}, nil

	case enums.WebhookEventSubscriptionResumed:
		if sub.Status == enums.SubscriptionStatusGracePeriod {
			return Outcome{Status: enums.SubscriptionStatusActive, ClearGrace: true}, nil
		}
		return Outcome{NoOp: true, Status: sub.Status}, nil

	default:
		return Outcome{}, fmt.Errorf("unhandled event type %q", event)
	}
}

// NextPeriodEnd advances one billing cycle using calendar arithmetic. Month
// arithmetic clamps to the last day of the target month: Jan 31 renews to
// Feb 29 in a leap year and Feb 28 otherwise, never a fixed 30-day offset.
func NextPeriodEnd(from time.Time, cycle enums.BillingCycle) time.Time {
	switch cycle {
	case enums.BillingCycleYearly:
		return addMonthsClamped(from, 12)
	default:
		return addMonthsClamped(from, 1)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	target := time.Date(year, month+time.Month(months), 1, hour, minute, sec, t.Nanosecond(), t.Location())
	last := daysInMonth(target.Year(), target.Month())
	if day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
