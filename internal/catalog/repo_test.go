package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	plans := `
CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  billing_cycle TEXT NOT NULL,
  freemium INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  features TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	planPrices := `
CREATE TABLE IF NOT EXISTS plan_prices (
  id TEXT PRIMARY KEY,
  plan_id TEXT NOT NULL,
  region TEXT NOT NULL,
  currency TEXT NOT NULL,
  amount TEXT NOT NULL,
  gateway_plan_id TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (plan_id, region)
);`
	require.NoError(t, db.Exec(plans).Error)
	require.NoError(t, db.Exec(planPrices).Error)
	return db
}

func seedPlan(t *testing.T, db *gorm.DB, plan models.Plan, prices ...models.PlanPrice) {
	t.Helper()
	require.NoError(t, db.Create(&plan).Error)
	for i := range prices {
		if prices[i].ID == uuid.Nil {
			prices[i].ID = uuid.New()
		}
		prices[i].PlanID = plan.ID
		require.NoError(t, db.Create(&prices[i]).Error)
	}
}

func TestRepositoryGetPrice(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seedPlan(t, db,
		models.Plan{ID: "pro-monthly", Name: "Pro", BillingCycle: enums.BillingCycleMonthly},
		models.PlanPrice{Region: enums.RegionIndia, Currency: enums.CurrencyINR, Amount: decimal.RequireFromString("1499.00")},
		models.PlanPrice{Region: enums.RegionGlobal, Currency: enums.CurrencyUSD, Amount: decimal.RequireFromString("19.99")},
	)

	price, err := repo.GetPrice(ctx, "pro-monthly", enums.RegionIndia)
	require.NoError(t, err)
	assert.Equal(t, enums.CurrencyINR, price.Currency)
	assert.True(t, price.Amount.Equal(decimal.RequireFromString("1499.00")))

	_, err = repo.GetPrice(ctx, "pro-monthly", enums.RegionEU)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositorySetGatewayPlanID(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	priceID := uuid.New()
	seedPlan(t, db,
		models.Plan{ID: "pro-yearly", Name: "Pro Yearly", BillingCycle: enums.BillingCycleYearly},
		models.PlanPrice{ID: priceID, Region: enums.RegionGlobal, Currency: enums.CurrencyUSD, Amount: decimal.RequireFromString("199.00")},
	)

	require.NoError(t, repo.SetGatewayPlanID(ctx, priceID.String(), "plan_gw_1"))

	price, err := repo.GetPrice(ctx, "pro-yearly", enums.RegionGlobal)
	require.NoError(t, err)
	require.NotNil(t, price.GatewayPlanID)
	assert.Equal(t, "plan_gw_1", *price.GatewayPlanID)
}

func TestRepositoryListActivePlansSkipsInactive(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seedPlan(t, db, models.Plan{ID: "basic", Name: "Basic", BillingCycle: enums.BillingCycleMonthly, Active: true})
	seedPlan(t, db, models.Plan{ID: "legacy", Name: "Legacy", BillingCycle: enums.BillingCycleMonthly, Active: true})
	require.NoError(t, db.Model(&models.Plan{}).Where("id = ?", "legacy").Update("active", false).Error)

	plans, err := repo.ListActivePlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "basic", plans[0].ID)
}
