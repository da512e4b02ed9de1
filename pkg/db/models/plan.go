package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Plan is a subscription plan definition. Pricing lives on PlanPrice so a
// plan can carry one price per billing region. Once a live subscription
// references a plan, only descriptive fields may change.
type Plan struct {
	ID           string             `gorm:"column:id;primaryKey"`
	Name         string             `gorm:"column:name;not null"`
	BillingCycle enums.BillingCycle `gorm:"column:billing_cycle;not null"`
	Freemium     bool               `gorm:"column:freemium;not null;default:false"`
	Active       bool               `gorm:"column:active;not null;default:true"`
	Features     pq.StringArray     `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
