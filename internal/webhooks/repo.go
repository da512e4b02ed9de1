package webhooks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Repository persists inbound gateway events. The (gateway, event_id) unique
// key is the only idempotency guard for webhook delivery; everything else
// builds on the insert outcome.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	// InsertOnce writes the event row. false means the event was already
	// received and the new row was discarded.
	InsertOnce(ctx context.Context, event *models.WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	Get(ctx context.Context, gateway enums.Gateway, eventID string) (*models.WebhookEvent, error)
	ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]models.WebhookEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a webhook event repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertOnce(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed": true, "processed_at": at}).Error
}

func (r *repository) Get(ctx context.Context, gateway enums.Gateway, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("gateway = ? AND event_id = ?", gateway, eventID).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("processed = ? AND received_at < ?", false, olderThan).
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
