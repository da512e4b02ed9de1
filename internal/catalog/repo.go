package catalog

import (
	"context"

	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/internal/repo"
	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Repository manages persistence for plans and their regional prices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetPlan(ctx context.Context, planID string) (*models.Plan, error)
	ListActivePlans(ctx context.Context) ([]models.Plan, error)
	ListPrices(ctx context.Context, planID string) ([]models.PlanPrice, error)
	GetPrice(ctx context.Context, planID string, region enums.Region) (*models.PlanPrice, error)
	SetGatewayPlanID(ctx context.Context, priceID string, gatewayPlanID string) error
}

type repository struct {
	base repo.Base
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.base.DB(ctx).Where("id = ?", planID).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) ListActivePlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := r.base.DB(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) ListPrices(ctx context.Context, planID string) ([]models.PlanPrice, error) {
	var prices []models.PlanPrice
	if err := r.base.DB(ctx).
		Where("plan_id = ?", planID).
		Order("region ASC").
		Find(&prices).Error; err != nil {
		return nil, err
	}
	return prices, nil
}

func (r *repository) GetPrice(ctx context.Context, planID string, region enums.Region) (*models.PlanPrice, error) {
	var price models.PlanPrice
	if err := r.base.DB(ctx).
		Where("plan_id = ? AND region = ?", planID, region).
		First(&price).Error; err != nil {
		return nil, err
	}
	return &price, nil
}

func (r *repository) SetGatewayPlanID(ctx context.Context, priceID string, gatewayPlanID string) error {
	return r.base.DB(ctx).
		Model(&models.PlanPrice{}).
		Where("id = ?", priceID).
		Update("gateway_plan_id", gatewayPlanID).Error
}
