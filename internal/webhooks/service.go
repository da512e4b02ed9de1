package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/internal/ledger"
	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/internal/notifications"
	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
	"github.com/nikhilbhat/subwise-backend/pkg/metrics"
)

// Service ingests gateway webhooks. Exactly-once processing rests on two
// layers: the (gateway, event_id) insert guard rejects redelivered events,
// and the event row, the state transition, and any ledger write commit in
// one transaction. A failed dispatch rolls everything back so the gateway's
// redelivery retries from scratch.
type Service interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
}

// IngestInput is one delivered webhook. EventID comes from the provider's
// delivery header; when absent the body hash stands in so replays still
// collide.
type IngestInput struct {
	Gateway enums.Gateway
	EventID string
	Body    []byte
	Now     time.Time
}

// IngestResult reports how the event was handled. All outcomes except an
// error acknowledge the delivery.
type IngestResult struct {
	EventType string
	Duplicate bool
	Unhandled bool
	Applied   bool
}

// ServiceParams wires the webhook ingest service.
type ServiceParams struct {
	Tx        lifecycle.TxRunner
	Repo      Repository
	Lifecycle lifecycle.Service
	Ledger    ledger.Service
	Notifier  notifications.Notifier
	Metrics   *metrics.WebhookMetrics
	Logger    *logger.Logger
}

type service struct {
	tx        lifecycle.TxRunner
	repo      Repository
	lifecycle lifecycle.Service
	ledger    ledger.Service
	notifier  notifications.Notifier
	metrics   *metrics.WebhookMetrics
	logger    *logger.Logger
}

// NewService wires the webhook ingest service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("webhooks tx runner required")
	case p.Repo == nil:
		return nil, fmt.Errorf("webhooks repository required")
	case p.Lifecycle == nil:
		return nil, fmt.Errorf("webhooks lifecycle service required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("webhooks ledger service required")
	case p.Notifier == nil:
		return nil, fmt.Errorf("webhooks notifier required")
	case p.Logger == nil:
		return nil, fmt.Errorf("webhooks logger required")
	}
	return &service{
		tx:        p.Tx,
		repo:      p.Repo,
		lifecycle: p.Lifecycle,
		ledger:    p.Ledger,
		notifier:  p.Notifier,
		metrics:   p.Metrics,
		logger:    p.Logger,
	}, nil
}

func (s *service) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if len(input.Body) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "empty webhook body")
	}
	if !input.Gateway.IsValid() || input.Gateway == enums.GatewayNone {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid webhook gateway %q", input.Gateway))
	}
	if input.Now.IsZero() {
		input.Now = time.Now().UTC()
	}

	envelope, err := ParseEnvelope(input.Body)
	if err != nil {
		s.metrics.IncFailed("malformed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook body")
	}

	eventID := input.EventID
	if eventID == "" {
		sum := sha256.Sum256(input.Body)
		eventID = "body_" + hex.EncodeToString(sum[:16])
	}

	ctx = s.logger.WithFields(ctx, map[string]any{
		"gateway":    input.Gateway.String(),
		"event_id":   eventID,
		"event_type": envelope.Event,
	})
	s.metrics.IncReceived(envelope.Event)

	result := &IngestResult{EventType: envelope.Event}
	var pending *lifecycle.PendingNotification

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		event := &models.WebhookEvent{
			ID:        uuid.New(),
			Gateway:   input.Gateway,
			EventID:   eventID,
			EventType: envelope.Event,
			Payload:   json.RawMessage(input.Body),
		}
		inserted, err := repo.InsertOnce(ctx, event)
		if err != nil {
			return err
		}
		if !inserted {
			result.Duplicate = true
			return nil
		}

		eventType, parseErr := enums.ParseWebhookEventType(envelope.Event)
		if parseErr != nil {
			// outside the handled set: keep the row for audit, ack the
			// delivery, change nothing
			result.Unhandled = true
			return repo.MarkProcessed(ctx, event.ID, input.Now)
		}

		subscriptionID := envelope.SubscriptionID()
		if subscriptionID == "" {
			// standalone payment traffic carries no subscription. A captured
			// order may settle a pending prorated charge keyed by its order id;
			// anything else is recorded and acknowledged without a transition.
			if eventType == enums.WebhookEventPaymentCaptured {
				if charge := envelope.Charge(); charge != nil && envelope.OrderID() != "" {
					settled, err := s.ledger.WithTx(tx).SettlePending(ctx, input.Gateway, envelope.OrderID(), charge.PaymentID)
					if err != nil {
						return err
					}
					if settled != nil {
						result.Applied = true
						return repo.MarkProcessed(ctx, event.ID, input.Now)
					}
				}
			}
			result.Unhandled = true
			return repo.MarkProcessed(ctx, event.ID, input.Now)
		}

		applied, err := s.lifecycle.ApplyEventInTx(ctx, tx, lifecycle.ApplyEventInput{
			GatewaySubscriptionID: subscriptionID,
			Event:                 eventType,
			Now:                   input.Now,
			GatewayCycleEnd:       envelope.CycleEnd(),
			Charge:                chargeDetails(envelope),
		})
		if err != nil {
			return err
		}

		result.Applied = !applied.NoOp
		pending = applied.Notification
		return repo.MarkProcessed(ctx, event.ID, input.Now)
	})
	if err != nil {
		s.metrics.IncFailed(envelope.Event)
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "processing webhook event")
	}

	switch {
	case result.Duplicate:
		s.metrics.IncDuplicate(envelope.Event)
		s.logger.Info(ctx, "duplicate webhook event ignored")
	case result.Unhandled:
		s.logger.Info(ctx, "webhook event recorded without dispatch")
	default:
		s.logger.Info(ctx, "webhook event processed")
	}

	if pending != nil {
		s.notifier.Notify(ctx, pending.UserID, pending.Kind, pending.Payload)
	}
	return result, nil
}

func chargeDetails(envelope *Envelope) *lifecycle.ChargeDetails {
	charge := envelope.Charge()
	if charge == nil {
		return nil
	}
	return &lifecycle.ChargeDetails{
		PaymentID: charge.PaymentID,
		Amount:    charge.Amount,
		Currency:  charge.Currency,
	}
}
