package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
	"github.com/nikhilbhat/subwise-backend/pkg/metrics"
)

// DisabledAdapter is the stand-in used when the gateway is switched off in
// non-production environments. Every call succeeds with an obviously fake
// handle, logs a warning, and counts on the dedicated stub metric so this
// traffic can never be confused with a real provider. Configuration
// validation refuses to construct it in prod.
type DisabledAdapter struct {
	logger  *logger.Logger
	metrics *metrics.GatewayMetrics
}

// NewDisabledAdapter builds the stub.
func NewDisabledAdapter(logg *logger.Logger, m *metrics.GatewayMetrics) *DisabledAdapter {
	return &DisabledAdapter{logger: logg, metrics: m}
}

func (a *DisabledAdapter) Name() enums.Gateway {
	return enums.GatewayNone
}

func (a *DisabledAdapter) stub(ctx context.Context, op string) {
	a.metrics.IncStub(op)
	if a.logger != nil {
		a.logger.Warn(a.logger.WithField(ctx, "gateway_op", op), "gateway disabled, stub response returned")
	}
}

func (a *DisabledAdapter) EnsurePayer(ctx context.Context, input EnsurePayerInput) (string, error) {
	a.stub(ctx, "ensure_payer")
	return "stub_cust_" + input.UserID.String(), nil
}

func (a *DisabledAdapter) EnsurePlan(ctx context.Context, input EnsurePlanInput) (string, error) {
	a.stub(ctx, "ensure_plan")
	return "stub_plan_" + input.PlanID, nil
}

func (a *DisabledAdapter) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*SubscriptionRef, error) {
	a.stub(ctx, "create_subscription")
	return &SubscriptionRef{
		ExternalID: "stub_sub_" + uuid.NewString(),
		Status:     "created",
	}, nil
}

func (a *DisabledAdapter) CancelSubscription(ctx context.Context, externalID string, atCycleEnd bool) error {
	a.stub(ctx, "cancel_subscription")
	return nil
}

func (a *DisabledAdapter) UpdateSubscription(ctx context.Context, input UpdateSubscriptionInput) error {
	a.stub(ctx, "update_subscription")
	return nil
}

func (a *DisabledAdapter) CreatePaymentIntent(ctx context.Context, input PaymentIntentInput) (*PaymentIntent, error) {
	a.stub(ctx, "create_payment_intent")
	return &PaymentIntent{
		ExternalID: fmt.Sprintf("stub_order_%s", uuid.NewString()),
		Amount:     input.Amount,
		Currency:   input.Currency,
	}, nil
}

func (a *DisabledAdapter) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*PaymentVerification, error) {
	a.stub(ctx, "verify_payment")
	return &PaymentVerification{
		PaymentID: input.PaymentID,
		Captured:  true,
	}, nil
}

func (a *DisabledAdapter) FetchInvoices(ctx context.Context, externalID string) ([]Invoice, error) {
	a.stub(ctx, "fetch_invoices")
	return nil, nil
}

func (a *DisabledAdapter) VerifyWebhookSignature(body []byte, signature string) bool {
	a.metrics.IncStub("verify_webhook_signature")
	return true
}
