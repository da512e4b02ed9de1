package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// CustomerMapping links a local user to the gateway-side payer record so the
// adapter reuses payers instead of creating duplicates. Matching is by user
// id, never by email alone; emails can collide across accounts.
type CustomerMapping struct {
	ID                uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID     `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_customer_mappings_user_gateway"`
	Gateway           enums.Gateway `gorm:"column:gateway;not null;uniqueIndex:idx_customer_mappings_user_gateway"`
	GatewayCustomerID string        `gorm:"column:gateway_customer_id;not null"`
	CreatedAt         time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
