package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/internal/catalog"
	"github.com/nikhilbhat/subwise-backend/internal/customers"
	"github.com/nikhilbhat/subwise-backend/internal/gateway"
	"github.com/nikhilbhat/subwise-backend/internal/ledger"
	"github.com/nikhilbhat/subwise-backend/internal/notifications"
	"github.com/nikhilbhat/subwise-backend/internal/proration"
	"github.com/nikhilbhat/subwise-backend/internal/reconcile"
	"github.com/nikhilbhat/subwise-backend/pkg/config"
	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	dbtypes "github.com/nikhilbhat/subwise-backend/pkg/db/types"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

// TxRunner runs a function inside a database transaction. pkg/db.Client
// satisfies it in production; tests wrap a bare gorm handle.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives every subscription state change: checkout, webhook events,
// plan changes, and the scheduled sweeps. All writes that touch a
// subscription row and its ledger rows happen in one transaction with the
// row locked first.
type Service interface {
	ApplyEventInTx(ctx context.Context, tx *gorm.DB, input ApplyEventInput) (*ApplyResult, error)

	ActivateFreemium(ctx context.Context, input ActivateFreemiumInput) (*models.Subscription, error)
	CreatePaid(ctx context.Context, input CreatePaidInput) (*CheckoutSession, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*models.Subscription, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Subscription, error)
	Upgrade(ctx context.Context, input ChangePlanInput) (*UpgradeResult, error)
	ScheduleDowngrade(ctx context.Context, input ChangePlanInput) (*DowngradeSchedule, error)

	GetForUser(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	Entitlement(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)

	RenewDue(ctx context.Context, now time.Time) (SweepReport, error)
	SweepExpiredToGrace(ctx context.Context, now time.Time) (SweepReport, error)
	SweepGraceToExpired(ctx context.Context, now time.Time) (SweepReport, error)
	ApplyPendingChanges(ctx context.Context, now time.Time) (SweepReport, error)
}

// ApplyEventInput is one gateway business event addressed to a subscription.
// Charge is set only when the event carries payment data worth a ledger row.
type ApplyEventInput struct {
	GatewaySubscriptionID string
	Event                 enums.WebhookEventType
	Now                   time.Time
	GatewayCycleEnd       *time.Time
	Charge                *ChargeDetails
}

// ChargeDetails is the payment payload reported alongside an event, in major
// units as converted by the webhook parser.
type ChargeDetails struct {
	PaymentID string
	Amount    decimal.Decimal
	Currency  enums.Currency
}

// PendingNotification is a user notification produced by a transition. The
// caller sends it after the surrounding transaction commits so a broker
// failure can never roll back a state change.
type PendingNotification struct {
	UserID  uuid.UUID
	Kind    enums.NotificationKind
	Payload map[string]any
}

// ApplyResult reports what an event changed.
type ApplyResult struct {
	Subscription *models.Subscription
	Transaction  *models.Transaction
	NoOp         bool
	Notification *PendingNotification
}

// ActivateFreemiumInput starts a zero-cost subscription.
type ActivateFreemiumInput struct {
	UserID uuid.UUID
	PlanID string
	Region enums.Region
}

// CreatePaidInput opens checkout for a paid plan.
type CreatePaidInput struct {
	UserID uuid.UUID
	PlanID string
	Region enums.Region
	Name   string
	Email  string
}

// CheckoutSession is the local mirror plus the URL the client completes
// payment at.
type CheckoutSession struct {
	Subscription *models.Subscription
	CheckoutURL  string
}

// ConfirmPaymentInput is the client's checkout callback.
type ConfirmPaymentInput struct {
	UserID         uuid.UUID
	SubscriptionID uuid.UUID
	PaymentID      string
	Signature      string
}

// CancelInput stops a subscription, either now or at the cycle's end.
type CancelInput struct {
	UserID         uuid.UUID
	SubscriptionID uuid.UUID
	Immediate      bool
}

// ChangePlanInput requests a move to another plan.
type ChangePlanInput struct {
	UserID         uuid.UUID
	SubscriptionID uuid.UUID
	NewPlanID      string
}

// UpgradeResult carries the prorated quote and, when money is due, the
// payment intent the client settles it with.
type UpgradeResult struct {
	Subscription *models.Subscription
	Quote        proration.Quote
	Intent       *gateway.PaymentIntent
}

// DowngradeSchedule confirms a downgrade queued for cycle end.
type DowngradeSchedule struct {
	Subscription *models.Subscription
	Quote        proration.Quote
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Scanned int
	Applied int
}

// ServiceParams wires the lifecycle service.
type ServiceParams struct {
	Tx        TxRunner
	Repo      Repository
	Catalog   catalog.Service
	Ledger    ledger.Service
	Customers customers.Repository
	Adapter   gateway.Adapter
	Notifier  notifications.Notifier
	Logger    *logger.Logger
	Scheduler config.SchedulerConfig
}

type service struct {
	tx        TxRunner
	repo      Repository
	catalog   catalog.Service
	ledger    ledger.Service
	customers customers.Repository
	adapter   gateway.Adapter
	notifier  notifications.Notifier
	logger    *logger.Logger
	scheduler config.SchedulerConfig
	params    TransitionParams
}

// NewService wires the lifecycle service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("lifecycle tx runner required")
	case p.Repo == nil:
		return nil, fmt.Errorf("lifecycle repository required")
	case p.Catalog == nil:
		return nil, fmt.Errorf("lifecycle catalog service required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("lifecycle ledger service required")
	case p.Customers == nil:
		return nil, fmt.Errorf("lifecycle customers repository required")
	case p.Adapter == nil:
		return nil, fmt.Errorf("lifecycle gateway adapter required")
	case p.Notifier == nil:
		return nil, fmt.Errorf("lifecycle notifier required")
	case p.Logger == nil:
		return nil, fmt.Errorf("lifecycle logger required")
	}

	params := TransitionParams{
		GraceDays:       p.Scheduler.GraceDays,
		HaltedGraceDays: p.Scheduler.HaltedGraceDays,
	}
	if params.GraceDays <= 0 {
		params.GraceDays = DefaultTransitionParams().GraceDays
	}
	if params.HaltedGraceDays <= 0 {
		params.HaltedGraceDays = DefaultTransitionParams().HaltedGraceDays
	}
	if p.Scheduler.SweepBatchSize <= 0 {
		p.Scheduler.SweepBatchSize = 250
	}
	if p.Scheduler.RenewalWindow <= 0 {
		p.Scheduler.RenewalWindow = 24 * time.Hour
	}

	return &service{
		tx:        p.Tx,
		repo:      p.Repo,
		catalog:   p.Catalog,
		ledger:    p.Ledger,
		customers: p.Customers,
		adapter:   p.Adapter,
		notifier:  p.Notifier,
		logger:    p.Logger,
		scheduler: p.Scheduler,
		params:    params,
	}, nil
}

// ApplyEventInTx runs a business event against the locked subscription row.
// The caller owns the transaction; webhook dispatch commits the event guard,
// the transition, and any ledger row together.
func (s *service) ApplyEventInTx(ctx context.Context, tx *gorm.DB, input ApplyEventInput) (*ApplyResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction handle required")
	}
	repo := s.repo.WithTx(tx)

	sub, err := repo.GetByGatewayIDForUpdate(ctx, input.GatewaySubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("no subscription for gateway id %q", input.GatewaySubscriptionID))
		}
		return nil, err
	}

	ctx = s.logger.WithSubscriptionID(ctx, sub.ID.String())
	now := input.Now.UTC()

	outcome, err := Transition(snapshotOf(sub), input.Event, now, input.GatewayCycleEnd, s.params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "transition rejected")
	}

	result := &ApplyResult{Subscription: sub, NoOp: outcome.NoOp}

	if !outcome.NoOp {
		wasEntitled := sub.Status.IsEntitled()
		applyOutcome(sub, outcome)

		// activation can arrive via webhook before the client's confirm call;
		// the user's previous entitled subscription gives way in the same
		// transaction, keeping one entitled row per user
		if !wasEntitled && sub.Status.IsEntitled() {
			existing, err := repo.GetEntitledByUserForUpdate(ctx, sub.UserID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			if existing != nil && existing.ID != sub.ID {
				if err := s.supersede(ctx, repo, existing); err != nil {
					return nil, err
				}
				sub.PreviousPlanID = &existing.PlanID
			}
		}

		if err := repo.Save(ctx, sub); err != nil {
			return nil, err
		}
	}

	switch input.Event {
	case enums.WebhookEventSubscriptionCharged:
		if input.Charge != nil {
			txn, err := s.recordCharge(ctx, tx, sub, *input.Charge, outcome)
			if err != nil {
				return nil, err
			}
			result.Transaction = txn
		}
	case enums.WebhookEventPaymentFailed:
		if input.Charge != nil && input.Charge.PaymentID != "" {
			txn, err := s.recordFailedCharge(ctx, tx, sub, *input.Charge)
			if err != nil {
				return nil, err
			}
			result.Transaction = txn
		}
	}

	result.Notification = notificationFor(sub, input.Event, outcome)
	return result, nil
}

// recordCharge reconciles a successful charge against the catalog before any
// ledger write. Reported amounts in the wrong currency are never stored
// as-is.
func (s *service) recordCharge(
	ctx context.Context,
	tx *gorm.DB,
	sub *models.Subscription,
	charge ChargeDetails,
	outcome Outcome,
) (*models.Transaction, error) {
	cat := s.catalog.WithTx(tx)

	price, err := cat.ResolvePrice(ctx, sub.PlanID, sub.Region)
	if err != nil {
		return nil, err
	}
	plan, err := cat.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	rows, err := cat.ListPrices(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	known := make([]reconcile.KnownPrice, 0, len(rows))
	for _, row := range rows {
		known = append(known, reconcile.KnownPrice{PlanID: row.PlanID, Amount: row.Amount})
	}

	rc := reconcile.ReconcileCharge(reconcile.Input{
		ReportedAmount:   charge.Amount,
		ReportedCurrency: charge.Currency,
		Region:           sub.Region,
		PlanPrice:        price.Amount,
		KnownPrices:      known,
	})

	annotations := rc.Annotations
	annotations.PlanSnapshot = &dbtypes.PlanSnapshot{
		PlanID:       plan.ID,
		PlanName:     plan.Name,
		BillingCycle: plan.BillingCycle,
		Region:       sub.Region,
		Price:        price.Amount,
		Currency:     price.Currency,
	}
	if outcome.StartDate != nil && outcome.EndDate != nil {
		annotations.Renewal = &dbtypes.Renewal{
			PeriodStart: *outcome.StartDate,
			PeriodEnd:   *outcome.EndDate,
		}
	}

	txn, _, err := s.ledger.WithTx(tx).Record(ctx, ledger.RecordTransactionInput{
		UserID:               sub.UserID,
		SubscriptionID:       sub.ID,
		Amount:               rc.Amount,
		Currency:             rc.Currency,
		Gateway:              sub.Gateway,
		GatewayTransactionID: charge.PaymentID,
		Status:               enums.TransactionStatusCompleted,
		Annotations:          annotations,
	})
	return txn, err
}

func (s *service) recordFailedCharge(
	ctx context.Context,
	tx *gorm.DB,
	sub *models.Subscription,
	charge ChargeDetails,
) (*models.Transaction, error) {
	currency := charge.Currency
	if !currency.IsValid() {
		currency = sub.Region.ExpectedCurrency()
	}
	txn, _, err := s.ledger.WithTx(tx).Record(ctx, ledger.RecordTransactionInput{
		UserID:               sub.UserID,
		SubscriptionID:       sub.ID,
		Amount:               charge.Amount.Abs(),
		Currency:             currency,
		Gateway:              sub.Gateway,
		GatewayTransactionID: charge.PaymentID,
		Status:               enums.TransactionStatusFailed,
	})
	return txn, err
}

func (s *service) ActivateFreemium(ctx context.Context, input ActivateFreemiumInput) (*models.Subscription, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	plan, err := s.catalog.GetPlan(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("plan %q is not active", plan.ID))
	}
	if !plan.Freemium {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("plan %q requires payment; open checkout instead", plan.ID))
	}

	now := time.Now().UTC()
	var sub *models.Subscription
	var superseded *models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.GetEntitledByUserForUpdate(ctx, input.UserID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		var previous *string
		if existing != nil {
			if existing.PlanID == plan.ID {
				sub = existing
				return nil
			}
			if err := s.supersede(ctx, repo, existing); err != nil {
				return err
			}
			superseded = existing
			previous = &existing.PlanID
		}

		sub = &models.Subscription{
			ID:             uuid.New(),
			UserID:         input.UserID,
			PlanID:         plan.ID,
			Region:         input.Region,
			Status:         enums.SubscriptionStatusActive,
			StartDate:      now,
			EndDate:        NextPeriodEnd(now, plan.BillingCycle),
			AutoRenew:      true,
			Gateway:        enums.GatewayNone,
			PreviousPlanID: previous,
		}
		if err := repo.Create(ctx, sub); err != nil {
			return err
		}

		_, _, err = s.ledger.WithTx(tx).Record(ctx, ledger.RecordTransactionInput{
			UserID:               sub.UserID,
			SubscriptionID:       sub.ID,
			Amount:               decimal.Zero,
			Currency:             input.Region.ExpectedCurrency(),
			Gateway:              enums.GatewayNone,
			GatewayTransactionID: "internal_act_" + sub.ID.String(),
			Status:               enums.TransactionStatusCompleted,
			Annotations: dbtypes.TransactionAnnotations{
				PlanSnapshot: &dbtypes.PlanSnapshot{
					PlanID:       plan.ID,
					PlanName:     plan.Name,
					BillingCycle: plan.BillingCycle,
					Region:       input.Region,
					Price:        decimal.Zero,
					Currency:     input.Region.ExpectedCurrency(),
				},
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if superseded != nil {
		s.notifier.Notify(ctx, input.UserID, enums.NotificationKindPlanChanged, map[string]any{
			"subscription_id": sub.ID.String(),
			"from_plan_id":    superseded.PlanID,
			"to_plan_id":      plan.ID,
		})
	}
	return sub, nil
}

func (s *service) CreatePaid(ctx context.Context, input CreatePaidInput) (*CheckoutSession, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	// price resolution fails fast, before any gateway call
	price, err := s.catalog.ResolvePrice(ctx, input.PlanID, input.Region)
	if err != nil {
		return nil, err
	}
	plan, err := s.catalog.GetPlan(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("plan %q is not active", plan.ID))
	}
	if plan.Freemium {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("plan %q is zero-cost; activate it directly", plan.ID))
	}

	existing, err := s.repo.GetEntitledByUser(ctx, input.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil && existing.PlanID == plan.ID {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("already subscribed to plan %q", plan.ID))
	}

	payerID, err := s.ensurePayer(ctx, input)
	if err != nil {
		return nil, err
	}
	gatewayPlanID, err := s.ensureGatewayPlan(ctx, plan, price)
	if err != nil {
		return nil, err
	}

	ref, err := s.adapter.CreateSubscription(ctx, gateway.CreateSubscriptionInput{
		UserID:        input.UserID,
		PayerID:       payerID,
		GatewayPlanID: gatewayPlanID,
		BillingCycle:  plan.BillingCycle,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:                    uuid.New(),
		UserID:                input.UserID,
		PlanID:                plan.ID,
		Region:                input.Region,
		Status:                enums.SubscriptionStatusCreated,
		StartDate:             now,
		EndDate:               NextPeriodEnd(now, plan.BillingCycle),
		AutoRenew:             true,
		Gateway:               s.adapter.Name(),
		GatewaySubscriptionID: &ref.ExternalID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(s.logger.WithSubscriptionID(ctx, sub.ID.String()), "checkout session opened")
	return &CheckoutSession{Subscription: sub, CheckoutURL: ref.CheckoutURL}, nil
}

func (s *service) ensurePayer(ctx context.Context, input CreatePaidInput) (string, error) {
	mapping, err := s.customers.Get(ctx, input.UserID, s.adapter.Name())
	if err == nil {
		return mapping.GatewayCustomerID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	payerID, err := s.adapter.EnsurePayer(ctx, gateway.EnsurePayerInput{
		UserID: input.UserID,
		Name:   input.Name,
		Email:  input.Email,
	})
	if err != nil {
		return "", err
	}
	err = s.customers.Upsert(ctx, &models.CustomerMapping{
		ID:                uuid.New(),
		UserID:            input.UserID,
		Gateway:           s.adapter.Name(),
		GatewayCustomerID: payerID,
	})
	if err != nil {
		return "", err
	}
	return payerID, nil
}

func (s *service) ensureGatewayPlan(ctx context.Context, plan *models.Plan, price *catalog.ResolvedPrice) (string, error) {
	if price.GatewayPlanID != nil && *price.GatewayPlanID != "" {
		return *price.GatewayPlanID, nil
	}
	gatewayPlanID, err := s.adapter.EnsurePlan(ctx, gateway.EnsurePlanInput{
		PlanID:       plan.ID,
		PlanName:     plan.Name,
		BillingCycle: plan.BillingCycle,
		Amount:       price.Amount,
		Currency:     price.Currency,
	})
	if err != nil {
		return "", err
	}
	if err := s.catalog.CacheGatewayPlanID(ctx, price.PriceID, gatewayPlanID); err != nil {
		return "", err
	}
	return gatewayPlanID, nil
}

func (s *service) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*models.Subscription, error) {
	sub, err := s.getOwned(ctx, input.UserID, input.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.GatewaySubscriptionID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription has no gateway mandate")
	}

	verification, err := s.adapter.VerifyPayment(ctx, gateway.VerifyPaymentInput{
		PaymentID:      input.PaymentID,
		SubscriptionID: *sub.GatewaySubscriptionID,
		Signature:      input.Signature,
	})
	if err != nil {
		return nil, err
	}
	if !verification.Captured {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment %q is not captured", input.PaymentID))
	}

	now := time.Now().UTC()
	var superseded *models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.GetByIDForUpdate(ctx, sub.ID)
		if err != nil {
			return err
		}
		sub = locked

		// the new mandate replaces any previous entitled subscription
		existing, err := repo.GetEntitledByUserForUpdate(ctx, input.UserID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil && existing.ID != sub.ID {
			if err := s.supersede(ctx, repo, existing); err != nil {
				return err
			}
			superseded = existing
			sub.PreviousPlanID = &existing.PlanID
		}

		outcome, err := Transition(snapshotOf(sub), enums.WebhookEventSubscriptionAuthenticated, now, nil, s.params)
		if err != nil {
			return err
		}
		if !outcome.NoOp {
			applyOutcome(sub, outcome)
		}
		if err := repo.Save(ctx, sub); err != nil {
			return err
		}

		_, err = s.recordCharge(ctx, tx, sub, ChargeDetails{
			PaymentID: verification.PaymentID,
			Amount:    verification.Amount,
			Currency:  verification.Currency,
		}, outcome)
		return err
	})
	if err != nil {
		return nil, err
	}

	if superseded != nil {
		s.notifier.Notify(ctx, input.UserID, enums.NotificationKindPlanChanged, map[string]any{
			"subscription_id": sub.ID.String(),
			"from_plan_id":    superseded.PlanID,
			"to_plan_id":      sub.PlanID,
		})
	}
	return sub, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Subscription, error) {
	sub, err := s.getOwned(ctx, input.UserID, input.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("subscription is already %s", sub.Status))
	}

	// provider first; a local cancel with a live mandate keeps charging
	if sub.GatewaySubscriptionID != nil {
		if err := s.adapter.CancelSubscription(ctx, *sub.GatewaySubscriptionID, !input.Immediate); err != nil {
			return nil, err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.GetByIDForUpdate(ctx, sub.ID)
		if err != nil {
			return err
		}
		sub = locked

		sub.AutoRenew = false
		sub.PendingPlanID = nil
		sub.PendingChangeAt = nil
		sub.PendingCredit = nil
		if input.Immediate {
			sub.Status = enums.SubscriptionStatusCancelled
			sub.GracePeriodEnd = nil
		}
		return repo.Save(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, input.UserID, enums.NotificationKindCancelled, map[string]any{
		"subscription_id": sub.ID.String(),
		"plan_id":         sub.PlanID,
		"immediate":       input.Immediate,
		"end_date":        sub.EndDate,
	})
	return sub, nil
}

func (s *service) Upgrade(ctx context.Context, input ChangePlanInput) (*UpgradeResult, error) {
	sub, quote, newPlan, newPrice, err := s.prepareChange(ctx, input)
	if err != nil {
		return nil, err
	}
	if quote.Kind == proration.ChangeDowngrade {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("plan %q costs less than the current plan; schedule a downgrade", input.NewPlanID))
	}

	var intent *gateway.PaymentIntent
	if quote.AmountDue.IsPositive() && sub.Gateway != enums.GatewayNone {
		intent, err = s.adapter.CreatePaymentIntent(ctx, gateway.PaymentIntentInput{
			UserID:   input.UserID,
			Amount:   quote.AmountDue,
			Currency: newPrice.Currency,
			Receipt:  "upg_" + sub.ID.String(),
		})
		if err != nil {
			return nil, err
		}
	}

	if sub.GatewaySubscriptionID != nil {
		gatewayPlanID, err := s.ensureGatewayPlan(ctx, newPlan, newPrice)
		if err != nil {
			return nil, err
		}
		err = s.adapter.UpdateSubscription(ctx, gateway.UpdateSubscriptionInput{
			ExternalID:    *sub.GatewaySubscriptionID,
			GatewayPlanID: gatewayPlanID,
			Immediate:     true,
		})
		if err != nil {
			return nil, err
		}
	}

	previousPlanID := sub.PlanID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.GetByIDForUpdate(ctx, sub.ID)
		if err != nil {
			return err
		}
		sub = locked

		previousPlanID = sub.PlanID
		sub.PreviousPlanID = &previousPlanID
		sub.PlanID = newPlan.ID
		sub.PendingPlanID = nil
		sub.PendingChangeAt = nil
		sub.PendingCredit = nil
		if err := repo.Save(ctx, sub); err != nil {
			return err
		}

		// an intent is only a promise to pay; the charge stays PENDING until
		// the captured webhook settles it by order id
		gatewayTxnID := "internal_upg_" + sub.ID.String()
		status := enums.TransactionStatusCompleted
		if intent != nil {
			gatewayTxnID = intent.ExternalID
			status = enums.TransactionStatusPending
		}
		_, _, err = s.ledger.WithTx(tx).Record(ctx, ledger.RecordTransactionInput{
			UserID:               sub.UserID,
			SubscriptionID:       sub.ID,
			Amount:               quote.AmountDue,
			Currency:             newPrice.Currency,
			Gateway:              sub.Gateway,
			GatewayTransactionID: gatewayTxnID,
			Status:               status,
			Annotations: dbtypes.TransactionAnnotations{
				PlanSnapshot: &dbtypes.PlanSnapshot{
					PlanID:       newPlan.ID,
					PlanName:     newPlan.Name,
					BillingCycle: newPlan.BillingCycle,
					Region:       sub.Region,
					Price:        newPrice.Amount,
					Currency:     newPrice.Currency,
				},
				Extra: map[string]string{
					"change":           string(quote.Kind),
					"previous_plan_id": previousPlanID,
				},
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, input.UserID, enums.NotificationKindPlanChanged, map[string]any{
		"subscription_id": sub.ID.String(),
		"from_plan_id":    previousPlanID,
		"to_plan_id":      sub.PlanID,
		"amount_due":      quote.AmountDue.String(),
	})
	return &UpgradeResult{Subscription: sub, Quote: quote, Intent: intent}, nil
}

func (s *service) ScheduleDowngrade(ctx context.Context, input ChangePlanInput) (*DowngradeSchedule, error) {
	sub, quote, newPlan, newPrice, err := s.prepareChange(ctx, input)
	if err != nil {
		return nil, err
	}
	if quote.Kind != proration.ChangeDowngrade {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("plan %q does not cost less than the current plan; upgrade instead", input.NewPlanID))
	}

	if sub.GatewaySubscriptionID != nil {
		gatewayPlanID, err := s.ensureGatewayPlan(ctx, newPlan, newPrice)
		if err != nil {
			return nil, err
		}
		err = s.adapter.UpdateSubscription(ctx, gateway.UpdateSubscriptionInput{
			ExternalID:    *sub.GatewaySubscriptionID,
			GatewayPlanID: gatewayPlanID,
			Immediate:     false,
		})
		if err != nil {
			return nil, err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.GetByIDForUpdate(ctx, sub.ID)
		if err != nil {
			return err
		}
		sub = locked

		changeAt := sub.EndDate
		credit := quote.Credit
		planID := newPlan.ID
		sub.PendingPlanID = &planID
		sub.PendingChangeAt = &changeAt
		sub.PendingCredit = &credit
		return repo.Save(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	return &DowngradeSchedule{Subscription: sub, Quote: quote}, nil
}

// prepareChange validates a plan change and prices it.
func (s *service) prepareChange(ctx context.Context, input ChangePlanInput) (
	*models.Subscription, proration.Quote, *models.Plan, *catalog.ResolvedPrice, error,
) {
	var zero proration.Quote

	sub, err := s.getOwned(ctx, input.UserID, input.SubscriptionID)
	if err != nil {
		return nil, zero, nil, nil, err
	}
	if !sub.Status.IsEntitled() {
		return nil, zero, nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot change plan while subscription is %s", sub.Status))
	}
	if sub.PlanID == input.NewPlanID {
		return nil, zero, nil, nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("already on plan %q", input.NewPlanID))
	}

	newPlan, err := s.catalog.GetPlan(ctx, input.NewPlanID)
	if err != nil {
		return nil, zero, nil, nil, err
	}
	if !newPlan.Active {
		return nil, zero, nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("plan %q is not active", newPlan.ID))
	}

	currentPrice, err := s.catalog.ResolvePrice(ctx, sub.PlanID, sub.Region)
	if err != nil {
		return nil, zero, nil, nil, err
	}
	newPrice, err := s.catalog.ResolvePrice(ctx, input.NewPlanID, sub.Region)
	if err != nil {
		return nil, zero, nil, nil, err
	}

	var lastPaid *decimal.Decimal
	lastTxn, err := s.ledger.LastCompleted(ctx, sub.ID)
	if err != nil {
		return nil, zero, nil, nil, err
	}
	if lastTxn != nil {
		amount := lastTxn.Amount
		lastPaid = &amount
	}

	quote := proration.Compute(proration.Input{
		Now:            time.Now().UTC(),
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		LastPaidAmount: lastPaid,
		CurrentPrice:   currentPrice.Amount,
		NewPrice:       newPrice.Amount,
		Currency:       newPrice.Currency,
	})
	return sub, quote, newPlan, newPrice, nil
}

func (s *service) GetForUser(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	return s.getOwned(ctx, userID, subscriptionID)
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) Entitlement(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.repo.GetEntitledByUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return sub, err
}

// RenewDue extends zero-cost subscriptions whose period ends inside the
// renewal window. Paid subscriptions renew via gateway charged events, never
// here.
func (s *service) RenewDue(ctx context.Context, now time.Time) (SweepReport, error) {
	before := now.UTC().Add(s.scheduler.RenewalWindow)
	due, err := s.repo.ListRenewalsDue(ctx, before, s.scheduler.SweepBatchSize)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Scanned: len(due)}
	var errs error
	for _, candidate := range due {
		renewed, err := s.renewOne(ctx, candidate.ID, before)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("renewing %s: %w", candidate.ID, err))
			continue
		}
		if renewed != nil {
			report.Applied++
			s.notifier.Notify(ctx, renewed.UserID, enums.NotificationKindRenewal, map[string]any{
				"subscription_id": renewed.ID.String(),
				"plan_id":         renewed.PlanID,
				"end_date":        renewed.EndDate,
			})
		}
	}
	return report, errs
}

func (s *service) renewOne(ctx context.Context, id uuid.UUID, before time.Time) (*models.Subscription, error) {
	var renewed *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// eligibility can change between list and lock
		if sub.Status != enums.SubscriptionStatusActive || !sub.AutoRenew ||
			sub.Gateway != enums.GatewayNone || sub.EndDate.After(before) {
			return nil
		}

		plan, err := s.catalog.WithTx(tx).GetPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}

		periodStart := sub.EndDate
		periodEnd := NextPeriodEnd(periodStart, plan.BillingCycle)
		sub.StartDate = periodStart
		sub.EndDate = periodEnd
		if err := repo.Save(ctx, sub); err != nil {
			return err
		}

		_, _, err = s.ledger.WithTx(tx).Record(ctx, ledger.RecordTransactionInput{
			UserID:               sub.UserID,
			SubscriptionID:       sub.ID,
			Amount:               decimal.Zero,
			Currency:             sub.Region.ExpectedCurrency(),
			Gateway:              enums.GatewayNone,
			GatewayTransactionID: fmt.Sprintf("internal_renew_%s_%d", sub.ID, periodStart.Unix()),
			Status:               enums.TransactionStatusCompleted,
			Annotations: dbtypes.TransactionAnnotations{
				Renewal: &dbtypes.Renewal{
					PeriodStart: periodStart,
					PeriodEnd:   periodEnd,
					Scheduled:   true,
				},
			},
		})
		if err != nil {
			return err
		}
		renewed = sub
		return nil
	})
	return renewed, err
}

// SweepExpiredToGrace moves lapsed ACTIVE subscriptions forward: payment
// recovery gets a grace window, a cancel-at-cycle-end subscription expires
// outright.
func (s *service) SweepExpiredToGrace(ctx context.Context, now time.Time) (SweepReport, error) {
	now = now.UTC()
	lapsed, err := s.repo.ListExpiredActive(ctx, now, s.scheduler.SweepBatchSize)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Scanned: len(lapsed)}
	var errs error
	for _, candidate := range lapsed {
		var moved *models.Subscription
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			sub, err := repo.GetByIDForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if sub.Status != enums.SubscriptionStatusActive || !sub.EndDate.Before(now) {
				return nil
			}
			if sub.AutoRenew {
				graceEnd := now.AddDate(0, 0, s.params.GraceDays)
				sub.Status = enums.SubscriptionStatusGracePeriod
				sub.GracePeriodEnd = &graceEnd
			} else {
				sub.Status = enums.SubscriptionStatusExpired
				sub.GracePeriodEnd = nil
			}
			if err := repo.Save(ctx, sub); err != nil {
				return err
			}
			moved = sub
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sweeping %s: %w", candidate.ID, err))
			continue
		}
		if moved == nil {
			continue
		}
		report.Applied++
		kind := enums.NotificationKindGraceEntered
		if moved.Status == enums.SubscriptionStatusExpired {
			kind = enums.NotificationKindExpired
		}
		s.notifier.Notify(ctx, moved.UserID, kind, map[string]any{
			"subscription_id":  moved.ID.String(),
			"plan_id":          moved.PlanID,
			"grace_period_end": moved.GracePeriodEnd,
		})
	}
	return report, errs
}

// SweepGraceToExpired expires subscriptions whose grace window ran out.
func (s *service) SweepGraceToExpired(ctx context.Context, now time.Time) (SweepReport, error) {
	now = now.UTC()
	lapsed, err := s.repo.ListGraceExpired(ctx, now, s.scheduler.SweepBatchSize)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Scanned: len(lapsed)}
	var errs error
	for _, candidate := range lapsed {
		var expired *models.Subscription
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			sub, err := repo.GetByIDForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if sub.Status != enums.SubscriptionStatusGracePeriod ||
				sub.GracePeriodEnd == nil || !sub.GracePeriodEnd.Before(now) {
				return nil
			}
			sub.Status = enums.SubscriptionStatusExpired
			sub.AutoRenew = false
			sub.GracePeriodEnd = nil
			if err := repo.Save(ctx, sub); err != nil {
				return err
			}
			expired = sub
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expiring %s: %w", candidate.ID, err))
			continue
		}
		if expired == nil {
			continue
		}
		report.Applied++
		s.notifier.Notify(ctx, expired.UserID, enums.NotificationKindExpired, map[string]any{
			"subscription_id": expired.ID.String(),
			"plan_id":         expired.PlanID,
		})
	}
	return report, errs
}

// ApplyPendingChanges executes scheduled downgrades whose cycle boundary has
// arrived.
func (s *service) ApplyPendingChanges(ctx context.Context, now time.Time) (SweepReport, error) {
	now = now.UTC()
	due, err := s.repo.ListPendingChangesDue(ctx, now, s.scheduler.SweepBatchSize)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Scanned: len(due)}
	var errs error
	for _, candidate := range due {
		var changed *models.Subscription
		var fromPlanID string
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			sub, err := repo.GetByIDForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if sub.PendingPlanID == nil || sub.PendingChangeAt == nil ||
				sub.PendingChangeAt.After(now) || !sub.Status.IsEntitled() {
				return nil
			}

			fromPlanID = sub.PlanID
			toPlanID := *sub.PendingPlanID
			var credit decimal.Decimal
			if sub.PendingCredit != nil {
				credit = *sub.PendingCredit
			}

			sub.PreviousPlanID = &fromPlanID
			sub.PlanID = toPlanID
			sub.PendingPlanID = nil
			sub.PendingChangeAt = nil
			sub.PendingCredit = nil
			if err := repo.Save(ctx, sub); err != nil {
				return err
			}

			_, _, err = s.ledger.WithTx(tx).Record(ctx, ledger.RecordTransactionInput{
				UserID:               sub.UserID,
				SubscriptionID:       sub.ID,
				Amount:               decimal.Zero,
				Currency:             sub.Region.ExpectedCurrency(),
				Gateway:              sub.Gateway,
				GatewayTransactionID: fmt.Sprintf("internal_chg_%s_%d", sub.ID, now.Unix()),
				Status:               enums.TransactionStatusCompleted,
				Annotations: dbtypes.TransactionAnnotations{
					DowngradeCredit: &dbtypes.DowngradeCredit{
						FromPlanID: fromPlanID,
						ToPlanID:   toPlanID,
						Credit:     credit,
						Currency:   sub.Region.ExpectedCurrency(),
					},
				},
			})
			if err != nil {
				return err
			}
			changed = sub
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("applying pending change %s: %w", candidate.ID, err))
			continue
		}
		if changed == nil {
			continue
		}
		report.Applied++
		s.notifier.Notify(ctx, changed.UserID, enums.NotificationKindPlanChanged, map[string]any{
			"subscription_id": changed.ID.String(),
			"from_plan_id":    fromPlanID,
			"to_plan_id":      changed.PlanID,
		})
	}
	return report, errs
}

func (s *service) getOwned(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if userID == uuid.Nil || subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and subscription id are required")
	}
	sub, err := s.repo.GetByID(ctx, subscriptionID)
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

// supersede closes out a previously entitled subscription when a new one
// replaces it. The provider mandate, if any, is cancelled best-effort; a
// dangling mandate self-heals via its cancelled webhook.
func (s *service) supersede(ctx context.Context, repo Repository, sub *models.Subscription) error {
	if sub.GatewaySubscriptionID != nil {
		if err := s.adapter.CancelSubscription(ctx, *sub.GatewaySubscriptionID, false); err != nil {
			s.logger.Error(s.logger.WithSubscriptionID(ctx, sub.ID.String()),
				"cancelling superseded gateway mandate", err)
		}
	}
	sub.Status = enums.SubscriptionStatusCancelled
	sub.AutoRenew = false
	sub.GracePeriodEnd = nil
	sub.PendingPlanID = nil
	sub.PendingChangeAt = nil
	sub.PendingCredit = nil
	return repo.Save(ctx, sub)
}

func snapshotOf(sub *models.Subscription) Snapshot {
	return Snapshot{
		Status:       sub.Status,
		StartDate:    sub.StartDate,
		EndDate:      sub.EndDate,
		AutoRenew:    sub.AutoRenew,
		BillingCycle: billingCycleOf(sub),
	}
}

// billingCycleOf infers the cycle from the period length when the plan is not
// at hand. A period over 200 days is yearly.
func billingCycleOf(sub *models.Subscription) enums.BillingCycle {
	if sub.EndDate.Sub(sub.StartDate) > 200*24*time.Hour {
		return enums.BillingCycleYearly
	}
	return enums.BillingCycleMonthly
}

func applyOutcome(sub *models.Subscription, out Outcome) {
	sub.Status = out.Status
	if out.StartDate != nil {
		sub.StartDate = *out.StartDate
	}
	if out.EndDate != nil {
		sub.EndDate = *out.EndDate
	}
	if out.AutoRenew != nil {
		sub.AutoRenew = *out.AutoRenew
	}
	if out.GracePeriodEnd != nil {
		sub.GracePeriodEnd = out.GracePeriodEnd
	}
	if out.ClearGrace {
		sub.GracePeriodEnd = nil
	}
}

// notificationFor maps a transition to the user-facing notification, if any.
func notificationFor(sub *models.Subscription, event enums.WebhookEventType, outcome Outcome) *PendingNotification {
	payload := map[string]any{
		"subscription_id": sub.ID.String(),
		"plan_id":         sub.PlanID,
		"status":          string(sub.Status),
	}

	if event == enums.WebhookEventPaymentFailed {
		return &PendingNotification{UserID: sub.UserID, Kind: enums.NotificationKindPaymentFailed, Payload: payload}
	}
	if outcome.NoOp {
		return nil
	}

	switch {
	case event == enums.WebhookEventSubscriptionCharged:
		payload["end_date"] = sub.EndDate
		return &PendingNotification{UserID: sub.UserID, Kind: enums.NotificationKindRenewal, Payload: payload}
	case outcome.Status == enums.SubscriptionStatusGracePeriod:
		payload["grace_period_end"] = sub.GracePeriodEnd
		return &PendingNotification{UserID: sub.UserID, Kind: enums.NotificationKindGraceEntered, Payload: payload}
	case outcome.Status == enums.SubscriptionStatusCancelled:
		return &PendingNotification{UserID: sub.UserID, Kind: enums.NotificationKindCancelled, Payload: payload}
	case outcome.Status == enums.SubscriptionStatusExpired:
		return &PendingNotification{UserID: sub.UserID, Kind: enums.NotificationKindExpired, Payload: payload}
	}
	return nil
}
