package customers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nikhilbhat/subwise-backend/internal/repo"
	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Repository manages the user-to-gateway payer mapping. Lookups always key on
// the local user id; gateway customer ids are provider-scoped.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, userID uuid.UUID, gateway enums.Gateway) (*models.CustomerMapping, error)
	Upsert(ctx context.Context, mapping *models.CustomerMapping) error
}

type repository struct {
	base repo.Base
}

// NewRepository returns a customer mapping repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) Get(ctx context.Context, userID uuid.UUID, gateway enums.Gateway) (*models.CustomerMapping, error) {
	var mapping models.CustomerMapping
	if err := r.base.DB(ctx).
		Where("user_id = ? AND gateway = ?", userID, gateway).
		First(&mapping).Error; err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *repository) Upsert(ctx context.Context, mapping *models.CustomerMapping) error {
	return r.base.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "gateway"}},
			DoUpdates: clause.AssignmentColumns([]string{"gateway_customer_id", "updated_at"}),
		}).
		Create(mapping).Error
}
