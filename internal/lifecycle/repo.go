package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Repository manages subscription persistence. ForUpdate variants take a row
// lock so concurrent transitions for the same subscription serialize; they
// must run inside a transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	Save(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	GetByGatewayID(ctx context.Context, gatewayID string) (*models.Subscription, error)
	GetByGatewayIDForUpdate(ctx context.Context, gatewayID string) (*models.Subscription, error)
	GetEntitledByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	GetEntitledByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)

	// Sweep queries; all bounded so one run cannot scan the whole table.
	ListRenewalsDue(ctx context.Context, before time.Time, limit int) ([]models.Subscription, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	ListGraceExpired(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	ListPendingChangesDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// locked applies FOR UPDATE on dialects that support it. The sqlite test
// driver serializes writes on its own.
func (r *repository) locked(ctx context.Context) *gorm.DB {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.locked(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) GetByGatewayID(ctx context.Context, gatewayID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("gateway_subscription_id = ?", gatewayID).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) GetByGatewayIDForUpdate(ctx context.Context, gatewayID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.locked(ctx).
		Where("gateway_subscription_id = ?", gatewayID).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) GetEntitledByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, entitledStatuses()).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) GetEntitledByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.locked(ctx).
		Where("user_id = ? AND status IN ?", userID, entitledStatuses()).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListRenewalsDue(ctx context.Context, before time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status = ? AND auto_renew = ? AND gateway = ? AND end_date <= ?",
			enums.SubscriptionStatusActive, true, enums.GatewayNone, before).
		Order("end_date ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status = ? AND end_date < ?", enums.SubscriptionStatusActive, now).
		Order("end_date ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListGraceExpired(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status = ? AND grace_period_end IS NOT NULL AND grace_period_end < ?",
			enums.SubscriptionStatusGracePeriod, now).
		Order("grace_period_end ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListPendingChangesDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("pending_plan_id IS NOT NULL AND pending_change_at <= ? AND status IN ?",
			now, entitledStatuses()).
		Order("pending_change_at ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func entitledStatuses() []enums.SubscriptionStatus {
	return []enums.SubscriptionStatus{
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusGracePeriod,
	}
}
