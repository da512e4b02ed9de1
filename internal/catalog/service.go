package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
)

// Service exposes the pricing catalog: plan lookups and region-aware price
// resolution. Prices never default silently; a plan without a usable price
// for the requested region is a configuration error surfaced to the caller.
type Service interface {
	WithTx(tx *gorm.DB) Service
	GetPlan(ctx context.Context, planID string) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]PlanWithPrices, error)
	ListPrices(ctx context.Context, planID string) ([]models.PlanPrice, error)
	ResolvePrice(ctx context.Context, planID string, region enums.Region) (*ResolvedPrice, error)
	CacheGatewayPlanID(ctx context.Context, priceID string, gatewayPlanID string) error
}

// PlanWithPrices pairs a plan with every regional price configured for it.
type PlanWithPrices struct {
	Plan   models.Plan
	Prices []models.PlanPrice
}

// ResolvedPrice is the outcome of region resolution. PriceRegion is the row
// that actually matched, which is GLOBAL when the requested region has no
// dedicated price.
type ResolvedPrice struct {
	PriceID       string
	PlanID        string
	Region        enums.Region
	PriceRegion   enums.Region
	Currency      enums.Currency
	Amount        decimal.Decimal
	GatewayPlanID *string
}

type service struct {
	repo Repository
}

// NewService wires a catalog service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	if planID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("plan %q not found", planID))
		}
		return nil, err
	}
	return plan, nil
}

func (s *service) ListPlans(ctx context.Context) ([]PlanWithPrices, error) {
	plans, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]PlanWithPrices, 0, len(plans))
	for _, plan := range plans {
		prices, err := s.repo.ListPrices(ctx, plan.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, PlanWithPrices{Plan: plan, Prices: prices})
	}
	return result, nil
}

func (s *service) ListPrices(ctx context.Context, planID string) ([]models.PlanPrice, error) {
	if planID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	return s.repo.ListPrices(ctx, planID)
}

func (s *service) ResolvePrice(ctx context.Context, planID string, region enums.Region) (*ResolvedPrice, error) {
	if planID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if !region.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid region %q", region))
	}

	plan, err := s.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Freemium {
		return &ResolvedPrice{
			PlanID:      plan.ID,
			Region:      region,
			PriceRegion: region,
			Currency:    region.ExpectedCurrency(),
			Amount:      decimal.Zero,
		}, nil
	}

	price, err := s.repo.GetPrice(ctx, planID, region)
	if errors.Is(err, gorm.ErrRecordNotFound) && region != enums.RegionGlobal {
		price, err = s.repo.GetPrice(ctx, planID, enums.RegionGlobal)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(
				pkgerrors.CodeInternal,
				fmt.Sprintf("plan %q has no price for region %q and no GLOBAL fallback", planID, region),
			)
		}
		return nil, err
	}

	return &ResolvedPrice{
		PriceID:       price.ID.String(),
		PlanID:        planID,
		Region:        region,
		PriceRegion:   price.Region,
		Currency:      price.Currency,
		Amount:        price.Amount,
		GatewayPlanID: price.GatewayPlanID,
	}, nil
}

func (s *service) CacheGatewayPlanID(ctx context.Context, priceID string, gatewayPlanID string) error {
	if priceID == "" || gatewayPlanID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "price id and gateway plan id are required")
	}
	return s.repo.SetGatewayPlanID(ctx, priceID, gatewayPlanID)
}
