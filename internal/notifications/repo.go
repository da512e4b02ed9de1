package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Repository is the delivery audit store.
type Repository interface {
	Record(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload []byte, deliveredAt *time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a notification audit repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Record(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload []byte, deliveredAt *time.Time) error {
	row := &models.Notification{
		ID:          uuid.New(),
		UserID:      userID,
		Kind:        kind,
		Payload:     json.RawMessage(payload),
		DeliveredAt: deliveredAt,
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Notification
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
