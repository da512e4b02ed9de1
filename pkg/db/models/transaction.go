package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/nikhilbhat/subwise-backend/pkg/db/types"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Transaction is an immutable ledger row for one gateway charge (or a
// zero-amount internal renewal). (gateway, gateway_transaction_id) is unique
// so reprocessing the same gateway event can never insert a duplicate.
type Transaction struct {
	ID                   uuid.UUID                      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID                      `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID       uuid.UUID                      `gorm:"column:subscription_id;type:uuid;not null;index"`
	Amount               decimal.Decimal                `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency             enums.Currency                 `gorm:"column:currency;not null"`
	Gateway              enums.Gateway                  `gorm:"column:gateway;not null;uniqueIndex:idx_transactions_gateway_txn"`
	GatewayTransactionID string                         `gorm:"column:gateway_transaction_id;not null;uniqueIndex:idx_transactions_gateway_txn"`
	Status               enums.TransactionStatus        `gorm:"column:status;not null"`
	Annotations          dbtypes.TransactionAnnotations `gorm:"column:annotations;type:jsonb"`
	CreatedAt            time.Time                      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                      `gorm:"column:updated_at;autoUpdateTime"`
}
