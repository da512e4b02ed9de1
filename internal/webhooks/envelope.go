package webhooks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	"github.com/nikhilbhat/subwise-backend/pkg/money"
)

// Envelope is the provider's webhook wire shape: an event name plus nested
// entity wrappers. Only the entities the engine reads are modeled; the raw
// body is persisted separately so nothing is lost.
type Envelope struct {
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
}

// Payload holds the entity wrappers that may accompany an event.
type Payload struct {
	Subscription *subscriptionWrapper `json:"subscription,omitempty"`
	Payment      *paymentWrapper      `json:"payment,omitempty"`
}

type subscriptionWrapper struct {
	Entity SubscriptionEntity `json:"entity"`
}

type paymentWrapper struct {
	Entity PaymentEntity `json:"entity"`
}

// SubscriptionEntity is the provider's subscription object, reduced to the
// fields dispatch reads.
type SubscriptionEntity struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	Status     string `json:"status"`
	CurrentEnd int64  `json:"current_end"`
}

// PaymentEntity is the provider's payment object. Amount is in minor units.
type PaymentEntity struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	OrderID        string `json:"order_id"`
	SubscriptionID string `json:"subscription_id"`
}

// ParseEnvelope decodes and minimally validates a webhook body. A body that
// does not parse or names no event is malformed and must be rejected, not
// retried.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding webhook body: %w", err)
	}
	if envelope.Event == "" {
		return nil, fmt.Errorf("webhook body names no event")
	}
	return &envelope, nil
}

// SubscriptionID returns the gateway subscription the event addresses, from
// whichever entity carries it.
func (e *Envelope) SubscriptionID() string {
	if e.Payload.Subscription != nil && e.Payload.Subscription.Entity.ID != "" {
		return e.Payload.Subscription.Entity.ID
	}
	if e.Payload.Payment != nil {
		return e.Payload.Payment.Entity.SubscriptionID
	}
	return ""
}

// OrderID returns the provider order a standalone payment settles, when the
// payment entity carries one.
func (e *Envelope) OrderID() string {
	if e.Payload.Payment == nil {
		return ""
	}
	return e.Payload.Payment.Entity.OrderID
}

// CycleEnd returns the provider's authoritative current-cycle end, when the
// subscription entity carries one.
func (e *Envelope) CycleEnd() *time.Time {
	if e.Payload.Subscription == nil || e.Payload.Subscription.Entity.CurrentEnd <= 0 {
		return nil
	}
	end := time.Unix(e.Payload.Subscription.Entity.CurrentEnd, 0).UTC()
	return &end
}

// Charge is a payment entity converted to major units.
type Charge struct {
	PaymentID string
	Amount    decimal.Decimal
	Currency  enums.Currency
}

// Charge converts the payment entity's minor-unit amount into a major unit
// decimal. Nil when the event carries no payment.
func (e *Envelope) Charge() *Charge {
	if e.Payload.Payment == nil || e.Payload.Payment.Entity.ID == "" {
		return nil
	}
	entity := e.Payload.Payment.Entity
	currency := enums.Currency(entity.Currency)
	return &Charge{
		PaymentID: entity.ID,
		Amount:    money.FromMinorUnits(entity.Amount, currency),
		Currency:  currency,
	}
}
