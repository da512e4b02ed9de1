package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
)

// Adapter is the single seam between the billing engine and the external
// payment provider. Amounts cross it as decimals; implementations own the
// conversion to whatever unit the provider wires speak.
type Adapter interface {
	Name() enums.Gateway

	// EnsurePayer returns the provider-side customer id for the user,
	// creating it when missing. Implementations tag the payer with the local
	// user id so webhook traffic is always attributable.
	EnsurePayer(ctx context.Context, input EnsurePayerInput) (string, error)

	// EnsurePlan returns the provider-side plan id for a price point,
	// creating it when missing.
	EnsurePlan(ctx context.Context, input EnsurePlanInput) (string, error)

	CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*SubscriptionRef, error)
	CancelSubscription(ctx context.Context, externalID string, atCycleEnd bool) error
	UpdateSubscription(ctx context.Context, input UpdateSubscriptionInput) error

	// CreatePaymentIntent opens a one-shot charge, used for prorated upgrade
	// payments outside the recurring mandate.
	CreatePaymentIntent(ctx context.Context, input PaymentIntentInput) (*PaymentIntent, error)

	// VerifyPayment checks a checkout callback: signature first, then the
	// payment object itself. Never trusts caller-supplied amounts.
	VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*PaymentVerification, error)

	// FetchInvoices reads settled charges for backfill reconciliation.
	FetchInvoices(ctx context.Context, externalID string) ([]Invoice, error)

	VerifyWebhookSignature(body []byte, signature string) bool
}

// EnsurePayerInput identifies the local user to the provider.
type EnsurePayerInput struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// EnsurePlanInput is one plan price point to mirror at the provider.
type EnsurePlanInput struct {
	PlanID       string
	PlanName     string
	BillingCycle enums.BillingCycle
	Amount       decimal.Decimal
	Currency     enums.Currency
}

// CreateSubscriptionInput opens a recurring mandate.
type CreateSubscriptionInput struct {
	UserID        uuid.UUID
	PayerID       string
	GatewayPlanID string
	BillingCycle  enums.BillingCycle
}

// UpdateSubscriptionInput switches a mandate to another plan. Immediate
// updates apply now (upgrades); otherwise the switch waits for cycle end.
type UpdateSubscriptionInput struct {
	ExternalID    string
	GatewayPlanID string
	Immediate     bool
}

// SubscriptionRef is the provider's handle for a mandate.
type SubscriptionRef struct {
	ExternalID  string
	Status      string
	CheckoutURL string
}

// PaymentIntentInput opens a one-shot charge.
type PaymentIntentInput struct {
	UserID   uuid.UUID
	Amount   decimal.Decimal
	Currency enums.Currency
	Receipt  string
}

// PaymentIntent is the provider handle the client completes checkout with.
type PaymentIntent struct {
	ExternalID string
	Amount     decimal.Decimal
	Currency   enums.Currency
}

// VerifyPaymentInput carries a checkout callback to verify.
type VerifyPaymentInput struct {
	PaymentID      string
	SubscriptionID string
	Signature      string
}

// PaymentVerification is the provider's truth about a payment.
type PaymentVerification struct {
	PaymentID string
	Amount    decimal.Decimal
	Currency  enums.Currency
	Captured  bool
}

// Invoice is a settled charge attached to a mandate.
type Invoice struct {
	ExternalID string
	PaymentID  string
	Amount     decimal.Decimal
	Currency   enums.Currency
	Status     string
	PaidAt     time.Time
}
