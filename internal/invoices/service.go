package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/internal/catalog"
	"github.com/nikhilbhat/subwise-backend/internal/gateway"
	"github.com/nikhilbhat/subwise-backend/internal/ledger"
	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
	"github.com/nikhilbhat/subwise-backend/pkg/pagination"
)

// Service renders the ledger as user-facing invoices and backfills charges
// the webhook path missed. Rendering prefers the plan snapshot frozen on the
// transaction; the live catalog is only a fallback for rows recorded before
// snapshots existed.
type Service interface {
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error)
	GetForSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) ([]Invoice, error)
	Backfill(ctx context.Context, userID, subscriptionID uuid.UUID) (BackfillReport, error)
}

// Invoice is one ledger transaction joined with its billing context.
type Invoice struct {
	TransactionID  uuid.UUID               `json:"transaction_id"`
	SubscriptionID uuid.UUID               `json:"subscription_id"`
	PlanID         string                  `json:"plan_id"`
	PlanName       string                  `json:"plan_name"`
	Amount         decimal.Decimal         `json:"amount"`
	Currency       enums.Currency          `json:"currency"`
	Status         enums.TransactionStatus `json:"status"`
	IssuedAt       time.Time               `json:"issued_at"`
	PeriodStart    *time.Time              `json:"period_start,omitempty"`
	PeriodEnd      *time.Time              `json:"period_end,omitempty"`
	Notes          []string                `json:"notes,omitempty"`
}

// Page is one page of a user's invoice history.
type Page struct {
	Invoices   []Invoice `json:"invoices"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// BackfillReport counts what a gateway reconciliation run found.
type BackfillReport struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
}

// ServiceParams wires the invoice service.
type ServiceParams struct {
	Ledger        ledger.Service
	Subscriptions lifecycle.Repository
	Catalog       catalog.Service
	Adapter       gateway.Adapter
	Logger        *logger.Logger
}

type service struct {
	ledger        ledger.Service
	subscriptions lifecycle.Repository
	catalog       catalog.Service
	adapter       gateway.Adapter
	logger        *logger.Logger
}

// NewService wires the invoice service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Ledger == nil:
		return nil, fmt.Errorf("invoices ledger service required")
	case p.Subscriptions == nil:
		return nil, fmt.Errorf("invoices subscription repository required")
	case p.Catalog == nil:
		return nil, fmt.Errorf("invoices catalog service required")
	case p.Adapter == nil:
		return nil, fmt.Errorf("invoices gateway adapter required")
	case p.Logger == nil:
		return nil, fmt.Errorf("invoices logger required")
	}
	return &service{
		ledger:        p.Ledger,
		subscriptions: p.Subscriptions,
		catalog:       p.Catalog,
		adapter:       p.Adapter,
		logger:        p.Logger,
	}, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	page, err := s.ledger.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, err
	}

	invoices := make([]Invoice, 0, len(page.Transactions))
	for _, txn := range page.Transactions {
		invoices = append(invoices, s.render(ctx, txn))
	}
	return &Page{Invoices: invoices, NextCursor: page.NextCursor}, nil
}

func (s *service) GetForSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) ([]Invoice, error) {
	sub, err := s.ownedSubscription(ctx, userID, subscriptionID)
	if err != nil {
		return nil, err
	}

	txns, err := s.ledger.ListForSubscription(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	invoices := make([]Invoice, 0, len(txns))
	for _, txn := range txns {
		invoices = append(invoices, s.render(ctx, txn))
	}
	return invoices, nil
}

// Backfill pulls settled invoices from the provider and inserts any the
// ledger is missing. The ledger's (gateway, gateway_transaction_id) guard
// makes reruns harmless.
func (s *service) Backfill(ctx context.Context, userID, subscriptionID uuid.UUID) (BackfillReport, error) {
	var report BackfillReport

	sub, err := s.ownedSubscription(ctx, userID, subscriptionID)
	if err != nil {
		return report, err
	}
	if sub.GatewaySubscriptionID == nil {
		return report, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription has no gateway mandate to reconcile")
	}

	invoices, err := s.adapter.FetchInvoices(ctx, *sub.GatewaySubscriptionID)
	if err != nil {
		return report, err
	}
	report.Fetched = len(invoices)

	ctx = s.logger.WithSubscriptionID(ctx, sub.ID.String())
	for _, invoice := range invoices {
		if !settled(invoice.Status) || invoice.PaymentID == "" {
			continue
		}
		_, inserted, err := s.ledger.Record(ctx, ledger.RecordTransactionInput{
			UserID:               sub.UserID,
			SubscriptionID:       sub.ID,
			Amount:               invoice.Amount,
			Currency:             invoice.Currency,
			Gateway:              sub.Gateway,
			GatewayTransactionID: invoice.PaymentID,
			Status:               enums.TransactionStatusCompleted,
		})
		if err != nil {
			return report, err
		}
		if inserted {
			report.Inserted++
		}
	}

	if report.Inserted > 0 {
		s.logger.Info(s.logger.WithField(ctx, "inserted", report.Inserted), "invoice backfill recovered charges")
	}
	return report, nil
}

func (s *service) render(ctx context.Context, txn models.Transaction) Invoice {
	invoice := Invoice{
		TransactionID:  txn.ID,
		SubscriptionID: txn.SubscriptionID,
		Amount:         txn.Amount,
		Currency:       txn.Currency,
		Status:         txn.Status,
		IssuedAt:       txn.CreatedAt,
	}

	if snapshot := txn.Annotations.PlanSnapshot; snapshot != nil {
		invoice.PlanID = snapshot.PlanID
		invoice.PlanName = snapshot.PlanName
	} else if sub, err := s.subscriptions.GetByID(ctx, txn.SubscriptionID); err == nil {
		invoice.PlanID = sub.PlanID
		if plan, err := s.catalog.GetPlan(ctx, sub.PlanID); err == nil {
			invoice.PlanName = plan.Name
		}
	}

	if renewal := txn.Annotations.Renewal; renewal != nil {
		start, end := renewal.PeriodStart, renewal.PeriodEnd
		invoice.PeriodStart = &start
		invoice.PeriodEnd = &end
	}
	if mismatch := txn.Annotations.CurrencyMismatch; mismatch != nil {
		invoice.Notes = append(invoice.Notes, fmt.Sprintf(
			"amount corrected from reported %s %s", mismatch.ReportedCurrency, mismatch.ReportedAmount))
	}
	if auth := txn.Annotations.AuthNormalized; auth != nil {
		invoice.Notes = append(invoice.Notes, "card verification charge")
	}
	if credit := txn.Annotations.DowngradeCredit; credit != nil {
		invoice.Notes = append(invoice.Notes, fmt.Sprintf(
			"plan change %s to %s, credit %s %s", credit.FromPlanID, credit.ToPlanID, credit.Currency, credit.Credit))
	}
	return invoice
}

func (s *service) ownedSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if userID == uuid.Nil || subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and subscription id are required")
	}
	sub, err := s.subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, err
	}
	if sub.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another user")
	}
	return sub, nil
}

func settled(status string) bool {
	return strings.EqualFold(status, "paid")
}
