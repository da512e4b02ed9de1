package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	dbtypes "github.com/nikhilbhat/subwise-backend/pkg/db/types"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	"github.com/nikhilbhat/subwise-backend/pkg/pagination"
)

// Service defines operations that record and read the transaction ledger.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Record(ctx context.Context, input RecordTransactionInput) (*models.Transaction, bool, error)
	SettlePending(ctx context.Context, gw enums.Gateway, gatewayTxnID, paymentID string) (*models.Transaction, error)
	LastCompleted(ctx context.Context, subscriptionID uuid.UUID) (*models.Transaction, error)
	ListForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Transaction, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error)
}

// RecordTransactionInput captures the immutable data a ledger row requires.
// Amount stays a decimal in the plan's currency; minor-unit conversion is the
// gateway adapter's concern.
type RecordTransactionInput struct {
	UserID               uuid.UUID
	SubscriptionID       uuid.UUID
	Amount               decimal.Decimal
	Currency             enums.Currency
	Gateway              enums.Gateway
	GatewayTransactionID string
	Status               enums.TransactionStatus
	Annotations          dbtypes.TransactionAnnotations
}

// TransactionPage is one page of a user's transaction history.
type TransactionPage struct {
	Transactions []models.Transaction
	NextCursor   string
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

// Record inserts the ledger row. The bool reports whether a new row was
// written; false means the gateway transaction was already recorded and the
// stored row is returned unchanged.
func (s *service) Record(ctx context.Context, input RecordTransactionInput) (*models.Transaction, bool, error) {
	if input.UserID == uuid.Nil {
		return nil, false, fmt.Errorf("user id is required")
	}
	if input.SubscriptionID == uuid.Nil {
		return nil, false, fmt.Errorf("subscription id is required")
	}
	if input.GatewayTransactionID == "" {
		return nil, false, fmt.Errorf("gateway transaction id is required")
	}
	if !input.Gateway.IsValid() {
		return nil, false, fmt.Errorf("invalid gateway %q", input.Gateway)
	}
	if !input.Status.IsValid() {
		return nil, false, fmt.Errorf("invalid transaction status %q", input.Status)
	}
	if !input.Currency.IsValid() {
		return nil, false, fmt.Errorf("invalid currency %q", input.Currency)
	}
	if input.Amount.IsNegative() {
		return nil, false, fmt.Errorf("amount cannot be negative")
	}

	txn := &models.Transaction{
		ID:                   uuid.New(),
		UserID:               input.UserID,
		SubscriptionID:       input.SubscriptionID,
		Amount:               input.Amount,
		Currency:             input.Currency,
		Gateway:              input.Gateway,
		GatewayTransactionID: input.GatewayTransactionID,
		Status:               input.Status,
		Annotations:          input.Annotations,
	}

	inserted, err := s.repo.Insert(ctx, txn)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		existing, err := s.repo.GetByGatewayTransactionID(ctx, input.Gateway, input.GatewayTransactionID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return txn, true, nil
}

// SettlePending completes a PENDING charge once its payment is captured. Nil
// without error means no row is keyed by the gateway transaction id; a row
// already in a final status is returned unchanged, so redeliveries are
// harmless.
func (s *service) SettlePending(ctx context.Context, gw enums.Gateway, gatewayTxnID, paymentID string) (*models.Transaction, error) {
	if gatewayTxnID == "" {
		return nil, fmt.Errorf("gateway transaction id is required")
	}
	txn, err := s.repo.GetByGatewayTransactionID(ctx, gw, gatewayTxnID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if txn.Status != enums.TransactionStatusPending {
		return txn, nil
	}

	txn.Status = enums.TransactionStatusCompleted
	if paymentID != "" {
		if txn.Annotations.Extra == nil {
			txn.Annotations.Extra = map[string]string{}
		}
		txn.Annotations.Extra["payment_id"] = paymentID
	}
	if err := s.repo.Save(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) LastCompleted(ctx context.Context, subscriptionID uuid.UUID) (*models.Transaction, error) {
	if subscriptionID == uuid.Nil {
		return nil, fmt.Errorf("subscription id is required")
	}
	txn, err := s.repo.LastCompletedForSubscription(ctx, subscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return txn, err
}

func (s *service) ListForSubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Transaction, error) {
	if subscriptionID == uuid.Nil {
		return nil, fmt.Errorf("subscription id is required")
	}
	return s.repo.ListBySubscription(ctx, subscriptionID)
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	txns, err := s.repo.ListByUser(ctx, userID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, err
	}

	page := &TransactionPage{}
	if len(txns) > limit {
		txns = txns[:limit]
		last := txns[len(txns)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	page.Transactions = txns
	return page, nil
}
