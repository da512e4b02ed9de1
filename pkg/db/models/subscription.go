package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Subscription is the locally-owned record of a recurring subscription.
// GatewaySubscriptionID is nil for zero-cost plans that never touch the
// provider. PendingPlanID/PendingChangeAt hold a scheduled downgrade that
// takes effect at the current cycle's end.
type Subscription struct {
	ID                    uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID                string                   `gorm:"column:plan_id;not null"`
	Region                enums.Region             `gorm:"column:region;not null;default:'GLOBAL'"`
	Status                enums.SubscriptionStatus `gorm:"column:status;not null;default:'CREATED'"`
	StartDate             time.Time                `gorm:"column:start_date;not null"`
	EndDate               time.Time                `gorm:"column:end_date;not null"`
	AutoRenew             bool                     `gorm:"column:auto_renew;not null;default:true"`
	GracePeriodEnd        *time.Time               `gorm:"column:grace_period_end"`
	Gateway               enums.Gateway            `gorm:"column:gateway;not null;default:'none'"`
	GatewaySubscriptionID *string                  `gorm:"column:gateway_subscription_id;uniqueIndex"`
	PreviousPlanID        *string                  `gorm:"column:previous_plan_id"`
	PendingPlanID         *string                  `gorm:"column:pending_plan_id"`
	PendingChangeAt       *time.Time               `gorm:"column:pending_change_at"`
	PendingCredit         *decimal.Decimal         `gorm:"column:pending_credit;type:numeric(12,2)"`
	CreatedAt             time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
