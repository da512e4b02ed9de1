package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// WebhookEvent is the audit/idempotency store for inbound gateway events.
// The payload is persisted verbatim before any processing. The unique key
// (gateway, event_id) is the sole idempotency key: an insert that conflicts
// means the event was already received and must not be reprocessed.
type WebhookEvent struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Gateway     enums.Gateway   `gorm:"column:gateway;not null;uniqueIndex:idx_webhook_events_gateway_event"`
	EventID     string          `gorm:"column:event_id;not null;uniqueIndex:idx_webhook_events_gateway_event"`
	EventType   string          `gorm:"column:event_type;not null"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Processed   bool            `gorm:"column:processed;not null;default:false"`
	ReceivedAt  time.Time       `gorm:"column:received_at;autoCreateTime"`
	ProcessedAt *time.Time      `gorm:"column:processed_at"`
}
