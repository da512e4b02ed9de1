package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	dbtypes "github.com/nikhilbhat/subwise-backend/pkg/db/types"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	"github.com/nikhilbhat/subwise-backend/pkg/pagination"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
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
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newLedgerService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := setupLedgerTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func TestRecordInsertsOnce(t *testing.T) {
	svc, _ := newLedgerService(t)
	ctx := context.Background()

	input := RecordTransactionInput{
		UserID:               uuid.New(),
		SubscriptionID:       uuid.New(),
		Amount:               decimal.RequireFromString("1499.00"),
		Currency:             enums.CurrencyINR,
		Gateway:              enums.GatewayRazorpay,
		GatewayTransactionID: "pay_abc",
		Status:               enums.TransactionStatusCompleted,
		Annotations: dbtypes.TransactionAnnotations{
			Renewal: &dbtypes.Renewal{Scheduled: true},
		},
	}

	first, inserted, err := svc.Record(ctx, input)
	require.NoError(t, err)
	assert.True(t, inserted)

	// same gateway transaction arriving again must not create a second row
	second, inserted, err := svc.Record(ctx, input)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)
}

func TestRecordValidation(t *testing.T) {
	svc, _ := newLedgerService(t)
	ctx := context.Background()

	valid := RecordTransactionInput{
		UserID:               uuid.New(),
		SubscriptionID:       uuid.New(),
		Amount:               decimal.RequireFromString("10"),
		Currency:             enums.CurrencyUSD,
		Gateway:              enums.GatewayRazorpay,
		GatewayTransactionID: "pay_x",
		Status:               enums.TransactionStatusCompleted,
	}

	tests := []struct {
		name   string
		mutate func(*RecordTransactionInput)
	}{
		{"missing user", func(in *RecordTransactionInput) { in.UserID = uuid.Nil }},
		{"missing subscription", func(in *RecordTransactionInput) { in.SubscriptionID = uuid.Nil }},
		{"missing gateway txn id", func(in *RecordTransactionInput) { in.GatewayTransactionID = "" }},
		{"bad gateway", func(in *RecordTransactionInput) { in.Gateway = "paypal" }},
		{"bad status", func(in *RecordTransactionInput) { in.Status = "SETTLED" }},
		{"bad currency", func(in *RecordTransactionInput) { in.Currency = "GBP" }},
		{"negative amount", func(in *RecordTransactionInput) { in.Amount = decimal.RequireFromString("-1") }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			_, _, err := svc.Record(ctx, input)
			require.Error(t, err)
		})
	}
}

func TestSettlePendingCompletesCharge(t *testing.T) {
	svc, _ := newLedgerService(t)
	ctx := context.Background()

	_, _, err := svc.Record(ctx, RecordTransactionInput{
		UserID: uuid.New(), SubscriptionID: uuid.New(),
		Amount: decimal.RequireFromString("15.00"), Currency: enums.CurrencyUSD,
		Gateway: enums.GatewayRazorpay, GatewayTransactionID: "order_1",
		Status: enums.TransactionStatusPending,
	})
	require.NoError(t, err)

	settled, err := svc.SettlePending(ctx, enums.GatewayRazorpay, "order_1", "pay_1")
	require.NoError(t, err)
	require.NotNil(t, settled)
	assert.Equal(t, enums.TransactionStatusCompleted, settled.Status)
	assert.Equal(t, "pay_1", settled.Annotations.Extra["payment_id"])

	// a redelivered capture leaves the settled row alone
	again, err := svc.SettlePending(ctx, enums.GatewayRazorpay, "order_1", "pay_other")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, settled.ID, again.ID)
	assert.Equal(t, "pay_1", again.Annotations.Extra["payment_id"])
}

func TestSettlePendingUnknownOrderIsNil(t *testing.T) {
	svc, _ := newLedgerService(t)

	settled, err := svc.SettlePending(context.Background(), enums.GatewayRazorpay, "order_missing", "pay_1")
	require.NoError(t, err)
	assert.Nil(t, settled)
}

func TestLastCompletedSkipsFailures(t *testing.T) {
	svc, _ := newLedgerService(t)
	ctx := context.Background()

	subID := uuid.New()
	userID := uuid.New()

	_, _, err := svc.Record(ctx, RecordTransactionInput{
		UserID: userID, SubscriptionID: subID,
		Amount: decimal.RequireFromString("19.99"), Currency: enums.CurrencyUSD,
		Gateway: enums.GatewayRazorpay, GatewayTransactionID: "pay_ok",
		Status: enums.TransactionStatusCompleted,
	})
	require.NoError(t, err)

	_, _, err = svc.Record(ctx, RecordTransactionInput{
		UserID: userID, SubscriptionID: subID,
		Amount: decimal.RequireFromString("19.99"), Currency: enums.CurrencyUSD,
		Gateway: enums.GatewayRazorpay, GatewayTransactionID: "pay_fail",
		Status: enums.TransactionStatusFailed,
	})
	require.NoError(t, err)

	last, err := svc.LastCompleted(ctx, subID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "pay_ok", last.GatewayTransactionID)

	none, err := svc.LastCompleted(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestListForUserPaginates(t *testing.T) {
	svc, db := newLedgerService(t)
	ctx := context.Background()

	userID := uuid.New()
	subID := uuid.New()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		txn := &models.Transaction{
			ID:                   uuid.New(),
			UserID:               userID,
			SubscriptionID:       subID,
			Amount:               decimal.RequireFromString("19.99"),
			Currency:             enums.CurrencyUSD,
			Gateway:              enums.GatewayRazorpay,
			GatewayTransactionID: uuid.NewString(),
			Status:               enums.TransactionStatusCompleted,
			CreatedAt:            base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, db.Create(txn).Error)
	}

	page, err := svc.ListForUser(ctx, userID, pagination.Params{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.ListForUser(ctx, userID, pagination.Params{Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Transactions, 2)
	assert.Empty(t, rest.NextCursor)

	// newest first across pages, no overlap
	seen := map[uuid.UUID]bool{}
	for _, txn := range append(page.Transactions, rest.Transactions...) {
		assert.False(t, seen[txn.ID])
		seen[txn.ID] = true
	}
}
