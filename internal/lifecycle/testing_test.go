package lifecycle

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/internal/catalog"
	"github.com/nikhilbhat/subwise-backend/internal/customers"
	"github.com/nikhilbhat/subwise-backend/internal/gateway"
	"github.com/nikhilbhat/subwise-backend/internal/ledger"
	"github.com/nikhilbhat/subwise-backend/pkg/config"
	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

func setupLifecycleTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  billing_cycle TEXT NOT NULL,
  freemium INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  features TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS plan_prices (
  id TEXT PRIMARY KEY,
  plan_id TEXT NOT NULL,
  region TEXT NOT NULL,
  currency TEXT NOT NULL,
  amount TEXT NOT NULL,
  gateway_plan_id TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (plan_id, region)
);`, `
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  region TEXT NOT NULL,
  status TEXT NOT NULL,
  start_date DATETIME NOT NULL,
  end_date DATETIME NOT NULL,
  auto_renew INTEGER NOT NULL DEFAULT 1,
  grace_period_end DATETIME,
  gateway TEXT NOT NULL,
  gateway_subscription_id TEXT UNIQUE,
  previous_plan_id TEXT,
  pending_plan_id TEXT,
  pending_change_at DATETIME,
  pending_credit TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  subscription_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  gateway TEXT NOT NULL,
  gateway_transaction_id TEXT NOT NULL,
  status TEXT NOT NULL,
  annotations TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (gateway, gateway_transaction_id)
);`, `
CREATE TABLE IF NOT EXISTS customer_mappings (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  gateway TEXT NOT NULL,
  gateway_customer_id TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (user_id, gateway)
);`}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// fakeAdapter stands in for the provider. It records every call and returns
// canned handles.
type fakeAdapter struct {
	mu sync.Mutex

	payerCalls  int
	planCalls   int
	createCalls int
	cancels     []fakeCancel
	updates     []gateway.UpdateSubscriptionInput
	intents     []gateway.PaymentIntentInput

	verification *gateway.PaymentVerification
	verifyErr    error
	createErr    error
}

type fakeCancel struct {
	ExternalID string
	AtCycleEnd bool
}

func (f *fakeAdapter) Name() enums.Gateway { return enums.GatewayRazorpay }

func (f *fakeAdapter) EnsurePayer(ctx context.Context, input gateway.EnsurePayerInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payerCalls++
	return "cust_" + input.UserID.String()[:8], nil
}

func (f *fakeAdapter) EnsurePlan(ctx context.Context, input gateway.EnsurePlanInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planCalls++
	return "gwplan_" + input.PlanID, nil
}

func (f *fakeAdapter) CreateSubscription(ctx context.Context, input gateway.CreateSubscriptionInput) (*gateway.SubscriptionRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createCalls++
	return &gateway.SubscriptionRef{
		ExternalID:  "gwsub_" + uuid.NewString()[:8],
		Status:      "created",
		CheckoutURL: "https://pay.example/checkout",
	}, nil
}

func (f *fakeAdapter) CancelSubscription(ctx context.Context, externalID string, atCycleEnd bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, fakeCancel{ExternalID: externalID, AtCycleEnd: atCycleEnd})
	return nil
}

func (f *fakeAdapter) UpdateSubscription(ctx context.Context, input gateway.UpdateSubscriptionInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, input)
	return nil
}

func (f *fakeAdapter) CreatePaymentIntent(ctx context.Context, input gateway.PaymentIntentInput) (*gateway.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, input)
	return &gateway.PaymentIntent{
		ExternalID: "order_" + uuid.NewString()[:8],
		Amount:     input.Amount,
		Currency:   input.Currency,
	}, nil
}

func (f *fakeAdapter) VerifyPayment(ctx context.Context, input gateway.VerifyPaymentInput) (*gateway.PaymentVerification, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.verification != nil {
		return f.verification, nil
	}
	return &gateway.PaymentVerification{
		PaymentID: input.PaymentID,
		Amount:    decimal.NewFromInt(1),
		Currency:  enums.CurrencyINR,
		Captured:  true,
	}, nil
}

func (f *fakeAdapter) FetchInvoices(ctx context.Context, externalID string) ([]gateway.Invoice, error) {
	return nil, nil
}

func (f *fakeAdapter) VerifyWebhookSignature(body []byte, signature string) bool { return true }

type sentNotification struct {
	UserID uuid.UUID
	Kind   enums.NotificationKind
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{UserID: userID, Kind: kind})
}

func (f *fakeNotifier) kinds() []enums.NotificationKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]enums.NotificationKind, 0, len(f.sent))
	for _, n := range f.sent {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type lifecycleHarness struct {
	db       *gorm.DB
	service  Service
	adapter  *fakeAdapter
	notifier *fakeNotifier
}

func newLifecycleHarness(t *testing.T) *lifecycleHarness {
	t.Helper()

	db := setupLifecycleTestDB(t)
	adapter := &fakeAdapter{}
	notifier := &fakeNotifier{}

	catalogService, err := catalog.NewService(catalog.NewRepository(db))
	require.NoError(t, err)
	ledgerService, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)

	service, err := NewService(ServiceParams{
		Tx:        gormTxRunner{db: db},
		Repo:      NewRepository(db),
		Catalog:   catalogService,
		Ledger:    ledgerService,
		Customers: customers.NewRepository(db),
		Adapter:   adapter,
		Notifier:  notifier,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Scheduler: config.SchedulerConfig{
			RenewalWindow:   24 * time.Hour,
			SweepBatchSize:  50,
			GraceDays:       7,
			HaltedGraceDays: 14,
		},
	})
	require.NoError(t, err)

	return &lifecycleHarness{db: db, service: service, adapter: adapter, notifier: notifier}
}

func (h *lifecycleHarness) seedPlan(t *testing.T, plan models.Plan, prices ...models.PlanPrice) {
	t.Helper()
	require.NoError(t, h.db.Create(&plan).Error)
	for i := range prices {
		if prices[i].ID == uuid.Nil {
			prices[i].ID = uuid.New()
		}
		prices[i].PlanID = plan.ID
		require.NoError(t, h.db.Create(&prices[i]).Error)
	}
}

func (h *lifecycleHarness) seedSubscription(t *testing.T, sub *models.Subscription) {
	t.Helper()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	require.NoError(t, h.db.Create(sub).Error)
}

func (h *lifecycleHarness) reload(t *testing.T, id uuid.UUID) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, h.db.Where("id = ?", id).First(&sub).Error)
	return &sub
}

func (h *lifecycleHarness) transactions(t *testing.T, subscriptionID uuid.UUID) []models.Transaction {
	t.Helper()
	var txns []models.Transaction
	require.NoError(t, h.db.Where("subscription_id = ?", subscriptionID).Order("created_at ASC").Find(&txns).Error)
	return txns
}
