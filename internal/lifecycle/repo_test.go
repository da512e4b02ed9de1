package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

func TestRepositoryListRenewalsDue(t *testing.T) {
	h := newLifecycleHarness(t)
	repo := NewRepository(h.db)
	ctx := context.Background()
	now := time.Now().UTC()

	due := &models.Subscription{
		UserID: uuid.New(), PlanID: "free", Region: enums.RegionGlobal,
		Status: enums.SubscriptionStatusActive, StartDate: now.AddDate(0, -1, 0), EndDate: now.Add(time.Hour),
		AutoRenew: true, Gateway: enums.GatewayNone,
	}
	h.seedSubscription(t, due)

	// paid subscriptions renew at the gateway, never locally
	paid := &models.Subscription{
		UserID: uuid.New(), PlanID: "pro", Region: enums.RegionGlobal,
		Status: enums.SubscriptionStatusActive, StartDate: now.AddDate(0, -1, 0), EndDate: now.Add(time.Hour),
		AutoRenew: true, Gateway: enums.GatewayRazorpay, GatewaySubscriptionID: strPtr("gwsub_r1"),
	}
	h.seedSubscription(t, paid)

	optedOut := &models.Subscription{
		UserID: uuid.New(), PlanID: "free", Region: enums.RegionGlobal,
		Status: enums.SubscriptionStatusActive, StartDate: now.AddDate(0, -1, 0), EndDate: now.Add(time.Hour),
		AutoRenew: false, Gateway: enums.GatewayNone,
	}
	h.seedSubscription(t, optedOut)

	notYet := &models.Subscription{
		UserID: uuid.New(), PlanID: "free", Region: enums.RegionGlobal,
		Status: enums.SubscriptionStatusActive, StartDate: now, EndDate: now.AddDate(0, 0, 10),
		AutoRenew: true, Gateway: enums.GatewayNone,
	}
	h.seedSubscription(t, notYet)

	subs, err := repo.ListRenewalsDue(ctx, now.Add(24*time.Hour), 50)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, due.ID, subs[0].ID)
}

func TestRepositoryListPendingChangesDue(t *testing.T) {
	h := newLifecycleHarness(t)
	repo := NewRepository(h.db)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	credit := decimal.NewFromInt(5)

	ready := &models.Subscription{
		UserID: uuid.New(), PlanID: "pro", Region: enums.RegionGlobal,
		Status: enums.SubscriptionStatusActive, StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 1, 0),
		AutoRenew: true, Gateway: enums.GatewayRazorpay, GatewaySubscriptionID: strPtr("gwsub_p1"),
		PendingPlanID: strPtr("lite"), PendingChangeAt: &past, PendingCredit: &credit,
	}
	h.seedSubscription(t, ready)

	tooEarly := &models.Subscription{
		UserID: uuid.New(), PlanID: "pro", Region: enums.RegionGlobal,
		Status: enums.SubscriptionStatusActive, StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 1, 0),
		AutoRenew: true, Gateway: enums.GatewayRazorpay, GatewaySubscriptionID: strPtr("gwsub_p2"),
		PendingPlanID: strPtr("lite"), PendingChangeAt: &future,
	}
	h.seedSubscription(t, tooEarly)

	terminal := &models.Subscription{
		UserID: uuid.New(), PlanID: "pro", Region: enums.RegionGlobal,
		Status: enums.SubscriptionStatusCancelled, StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 1, 0),
		AutoRenew: false, Gateway: enums.GatewayRazorpay, GatewaySubscriptionID: strPtr("gwsub_p3"),
		PendingPlanID: strPtr("lite"), PendingChangeAt: &past,
	}
	h.seedSubscription(t, terminal)

	subs, err := repo.ListPendingChangesDue(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, ready.ID, subs[0].ID)
}

func TestRepositoryGetEntitledByUser(t *testing.T) {
	h := newLifecycleHarness(t)
	repo := NewRepository(h.db)
	ctx := context.Background()
	now := time.Now().UTC()
	userID := uuid.New()

	expired := &models.Subscription{
		UserID: userID, PlanID: "old", Region: enums.RegionGlobal,
		Status: enums.SubscriptionStatusExpired, StartDate: now.AddDate(0, -2, 0), EndDate: now.AddDate(0, -1, 0),
		AutoRenew: false, Gateway: enums.GatewayNone,
	}
	h.seedSubscription(t, expired)

	graceEnd := now.AddDate(0, 0, 3)
	entitled := &models.Subscription{
		UserID: userID, PlanID: "pro", Region: enums.RegionGlobal,
		Status: enums.SubscriptionStatusGracePeriod, StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 0, -2),
		AutoRenew: true, GracePeriodEnd: &graceEnd,
		Gateway: enums.GatewayRazorpay, GatewaySubscriptionID: strPtr("gwsub_e1"),
	}
	h.seedSubscription(t, entitled)

	sub, err := repo.GetEntitledByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, entitled.ID, sub.ID, "grace period still counts as entitled")
}
