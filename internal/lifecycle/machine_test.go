package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

func utc(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 10, 0, 0, 0, time.UTC)
}

func TestNextPeriodEndMonthlyClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"leap february", utc(2024, time.January, 31), utc(2024, time.February, 29)},
		{"non-leap february", utc(2023, time.January, 31), utc(2023, time.February, 28)},
		{"mid month", utc(2026, time.March, 15), utc(2026, time.April, 15)},
		{"thirty day month", utc(2026, time.May, 31), utc(2026, time.June, 30)},
		{"december rollover", utc(2026, time.December, 31), utc(2027, time.January, 31)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NextPeriodEnd(tc.from, enums.BillingCycleMonthly)
			assert.True(t, got.Equal(tc.want), "got %s want %s", got, tc.want)
		})
	}
}

func TestNextPeriodEndYearly(t *testing.T) {
	// Feb 29 on a leap year renews to Feb 28 the following year
	got := NextPeriodEnd(utc(2024, time.February, 29), enums.BillingCycleYearly)
	assert.True(t, got.Equal(utc(2025, time.February, 28)), "got %s", got)

	got = NextPeriodEnd(utc(2026, time.June, 15), enums.BillingCycleYearly)
	assert.True(t, got.Equal(utc(2027, time.June, 15)), "got %s", got)
}

func activeSnapshot(end time.Time) Snapshot {
	return Snapshot{
		Status:       enums.SubscriptionStatusActive,
		StartDate:    end.AddDate(0, -1, 0),
		EndDate:      end,
		AutoRenew:    true,
		BillingCycle: enums.BillingCycleMonthly,
	}
}

func TestTransitionChargedExtendsFromCycleEnd(t *testing.T) {
	end := utc(2024, time.January, 31)
	now := end.Add(-2 * time.Hour)

	out, err := Transition(activeSnapshot(end), enums.WebhookEventSubscriptionCharged, now, nil, DefaultTransitionParams())
	require.NoError(t, err)
	assert.False(t, out.NoOp)
	assert.Equal(t, enums.SubscriptionStatusActive, out.Status)
	require.NotNil(t, out.EndDate)
	assert.True(t, out.EndDate.Equal(utc(2024, time.February, 29)), "got %s", out.EndDate)
	require.NotNil(t, out.StartDate)
	assert.True(t, out.StartDate.Equal(end))
	assert.True(t, out.ClearGrace)
}

func TestTransitionPaymentFailedPastEndDateEntersGrace(t *testing.T) {
	end := utc(2026, time.June, 1)
	now := end.AddDate(0, 0, 1)

	out, err := Transition(activeSnapshot(end), enums.WebhookEventPaymentFailed, now, nil, DefaultTransitionParams())
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusGracePeriod, out.Status)
	require.NotNil(t, out.GracePeriodEnd)
	assert.True(t, out.GracePeriodEnd.Equal(now.AddDate(0, 0, 7)))
}

func TestTransitionPaymentFailedBeforeEndDateIsNoOp(t *testing.T) {
	end := utc(2026, time.June, 30)
	now := end.AddDate(0, 0, -5)

	out, err := Transition(activeSnapshot(end), enums.WebhookEventPaymentFailed, now, nil, DefaultTransitionParams())
	require.NoError(t, err)
	assert.True(t, out.NoOp)
}

func TestTransitionHaltedGetsLongerGraceWindow(t *testing.T) {
	now := utc(2026, time.June, 10)

	out, err := Transition(activeSnapshot(now.AddDate(0, 0, -3)), enums.WebhookEventSubscriptionHalted, now, nil, DefaultTransitionParams())
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusGracePeriod, out.Status)
	require.NotNil(t, out.GracePeriodEnd)
	assert.True(t, out.GracePeriodEnd.Equal(now.AddDate(0, 0, 14)))
}

func TestTransitionActivatedIsIdempotent(t *testing.T) {
	now := utc(2026, time.June, 10)
	sub := activeSnapshot(now.AddDate(0, 1, 0))

	out, err := Transition(sub, enums.WebhookEventSubscriptionActivated, now, nil, DefaultTransitionParams())
	require.NoError(t, err)
	assert.True(t, out.NoOp)

	sub.Status = enums.SubscriptionStatusCreated
	out, err = Transition(sub, enums.WebhookEventSubscriptionActivated, now, nil, DefaultTransitionParams())
	require.NoError(t, err)
	assert.False(t, out.NoOp)
	assert.Equal(t, enums.SubscriptionStatusActive, out.Status)
}

func TestTransitionCancelledStopsAutoRenew(t *testing.T) {
	now := utc(2026, time.June, 10)

	out, err := Transition(activeSnapshot(now.AddDate(0, 1, 0)), enums.WebhookEventSubscriptionCancelled, now, nil, DefaultTransitionParams())
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCancelled, out.Status)
	require.NotNil(t, out.AutoRenew)
	assert.False(t, *out.AutoRenew)
}

func TestTransitionCompletedExpires(t *testing.T) {
	now := utc(2026, time.June, 10)

	out, err := Transition(activeSnapshot(now), enums.WebhookEventSubscriptionCompleted, now, nil, DefaultTransitionParams())
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusExpired, out.Status)
}

func TestTransitionUpdatedRefreshesEndDate(t *testing.T) {
	now := utc(2026, time.June, 10)
	gatewayEnd := utc(2026, time.August, 1)

	out, err := Transition(activeSnapshot(now.AddDate(0, 1, 0)), enums.WebhookEventSubscriptionUpdated, now, &gatewayEnd, DefaultTransitionParams())
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, out.Status)
	require.NotNil(t, out.EndDate)
	assert.True(t, out.EndDate.Equal(gatewayEnd))

	out, err = Transition(activeSnapshot(now), enums.WebhookEventSubscriptionUpdated, now, nil, DefaultTransitionParams())
	require.NoError(t, err)
	assert.True(t, out.NoOp)
}

func TestTransitionTerminalStatesAreFrozen(t *testing.T) {
	now := utc(2026, time.June, 10)
	for _, status := range []enums.SubscriptionStatus{enums.SubscriptionStatusExpired, enums.SubscriptionStatusCancelled} {
		sub := activeSnapshot(now)
		sub.Status = status

		out, err := Transition(sub, enums.WebhookEventSubscriptionCharged, now, nil, DefaultTransitionParams())
		require.NoError(t, err)
		assert.True(t, out.NoOp, "status %s", status)
	}
}

func TestTransitionResumedRecoversFromGrace(t *testing.T) {
	now := utc(2026, time.June, 10)
	sub := activeSnapshot(now.AddDate(0, 0, -2))
	sub.Status = enums.SubscriptionStatusGracePeriod

	out, err := Transition(sub, enums.WebhookEventSubscriptionResumed, now, nil, DefaultTransitionParams())
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, out.Status)
	assert.True(t, out.ClearGrace)
}

func TestTransitionRejectsUnknownEvent(t *testing.T) {
	now := utc(2026, time.June, 10)
	_, err := Transition(activeSnapshot(now), enums.WebhookEventType("invoice.created"), now, nil, DefaultTransitionParams())
	require.Error(t, err)
}
