package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Notification is the delivery audit row written whenever the engine hands a
// lifecycle event to the notification collaborator. Delivery failures leave
// DeliveredAt nil; they never block the state transition that produced them.
type Notification struct {
	ID          uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Kind        enums.NotificationKind `gorm:"column:kind;not null"`
	Payload     json.RawMessage        `gorm:"column:payload;type:jsonb"`
	DeliveredAt *time.Time             `gorm:"column:delivered_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}
