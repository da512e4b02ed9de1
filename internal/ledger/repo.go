package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	"github.com/nikhilbhat/subwise-backend/pkg/pagination"
)

// Repository manages persistence for the transaction ledger. Rows are written
// once and only move from PENDING to a final status; reprocessed gateway
// events collapse into no-ops on the (gateway, gateway_transaction_id) unique
// key.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, txn *models.Transaction) (bool, error)
	Save(ctx context.Context, txn *models.Transaction) error
	GetByGatewayTransactionID(ctx context.Context, gateway enums.Gateway, gatewayTxnID string) (*models.Transaction, error)
	LastCompletedForSubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Transaction, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Transaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Insert writes the row unless the gateway transaction was already recorded.
// The bool reports whether a new row was created.
func (r *repository) Insert(ctx context.Context, txn *models.Transaction) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway"}, {Name: "gateway_transaction_id"}},
			DoNothing: true,
		}).
		Create(txn)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Save(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

func (r *repository) GetByGatewayTransactionID(ctx context.Context, gateway enums.Gateway, gatewayTxnID string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).
		Where("gateway = ? AND gateway_transaction_id = ?", gateway, gatewayTxnID).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) LastCompletedForSubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, enums.TransactionStatusCompleted).
		Order("created_at DESC").
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var txns []models.Transaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
