package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// PlanPrice is a per-region price point for a plan. A plan has at most one
// price per region; the GLOBAL row is the fallback when no region-specific
// price exists. GatewayPlanID caches the provider-side plan object created
// for (plan, currency) so the adapter never creates duplicates.
type PlanPrice struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PlanID        string          `gorm:"column:plan_id;not null;uniqueIndex:idx_plan_prices_plan_region"`
	Region        enums.Region    `gorm:"column:region;not null;uniqueIndex:idx_plan_prices_plan_region"`
	Currency      enums.Currency  `gorm:"column:currency;not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	GatewayPlanID *string         `gorm:"column:gateway_plan_id"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
