package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/metrics"
	"github.com/nikhilbhat/subwise-backend/pkg/money"
	"github.com/nikhilbhat/subwise-backend/pkg/razorpay"
)

// mandate lengths by billing cycle; Razorpay requires a finite total_count
const (
	monthlyTotalCount = 120
	yearlyTotalCount  = 10
)

// RazorpayAdapter implements Adapter over the Razorpay REST client.
type RazorpayAdapter struct {
	client  *razorpay.Client
	metrics *metrics.GatewayMetrics
}

// NewRazorpayAdapter wires the adapter. The metrics collector may be nil in
// tests.
func NewRazorpayAdapter(client *razorpay.Client, m *metrics.GatewayMetrics) (*RazorpayAdapter, error) {
	if client == nil {
		return nil, fmt.Errorf("razorpay client required")
	}
	return &RazorpayAdapter{client: client, metrics: m}, nil
}

func (a *RazorpayAdapter) Name() enums.Gateway {
	return enums.GatewayRazorpay
}

func (a *RazorpayAdapter) record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeGatewayUnavailable {
			outcome = "unavailable"
		}
	}
	a.metrics.IncRequest(op, outcome)
}

func (a *RazorpayAdapter) EnsurePayer(ctx context.Context, input EnsurePayerInput) (string, error) {
	customer, err := a.client.CreateCustomer(ctx, razorpay.CustomerCreateParams{
		Name:  input.Name,
		Email: input.Email,
		Notes: map[string]string{"user_id": input.UserID.String()},
	})
	a.record("ensure_payer", err)
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}

func (a *RazorpayAdapter) EnsurePlan(ctx context.Context, input EnsurePlanInput) (string, error) {
	minor, err := money.ToMinorUnits(input.Amount, input.Currency)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "converting plan price")
	}

	period := "monthly"
	if input.BillingCycle == enums.BillingCycleYearly {
		period = "yearly"
	}

	plan, err := a.client.CreatePlan(ctx, razorpay.PlanCreateParams{
		Period:   period,
		Interval: 1,
		Item: razorpay.PlanItem{
			Name:     input.PlanName,
			Amount:   minor,
			Currency: input.Currency.String(),
		},
	})
	a.record("ensure_plan", err)
	if err != nil {
		return "", err
	}
	return plan.ID, nil
}

func (a *RazorpayAdapter) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*SubscriptionRef, error) {
	totalCount := monthlyTotalCount
	if input.BillingCycle == enums.BillingCycleYearly {
		totalCount = yearlyTotalCount
	}

	sub, err := a.client.CreateSubscription(ctx, razorpay.SubscriptionCreateParams{
		PlanID:         input.GatewayPlanID,
		CustomerID:     input.PayerID,
		TotalCount:     totalCount,
		CustomerNotify: 1,
		Notes:          map[string]string{"user_id": input.UserID.String()},
	})
	a.record("create_subscription", err)
	if err != nil {
		return nil, err
	}
	return &SubscriptionRef{
		ExternalID:  sub.ID,
		Status:      sub.Status,
		CheckoutURL: sub.ShortURL,
	}, nil
}

func (a *RazorpayAdapter) CancelSubscription(ctx context.Context, externalID string, atCycleEnd bool) error {
	_, err := a.client.CancelSubscription(ctx, externalID, atCycleEnd)
	a.record("cancel_subscription", err)
	return err
}

func (a *RazorpayAdapter) UpdateSubscription(ctx context.Context, input UpdateSubscriptionInput) error {
	schedule := "cycle_end"
	if input.Immediate {
		schedule = "now"
	}
	_, err := a.client.UpdateSubscription(ctx, input.ExternalID, razorpay.SubscriptionUpdateParams{
		PlanID:           input.GatewayPlanID,
		ScheduleChangeAt: schedule,
	})
	a.record("update_subscription", err)
	return err
}

func (a *RazorpayAdapter) CreatePaymentIntent(ctx context.Context, input PaymentIntentInput) (*PaymentIntent, error) {
	minor, err := money.ToMinorUnits(input.Amount, input.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "converting intent amount")
	}

	order, err := a.client.CreateOrder(ctx, razorpay.OrderCreateParams{
		Amount:   minor,
		Currency: input.Currency.String(),
		Receipt:  input.Receipt,
		Notes:    map[string]string{"user_id": input.UserID.String()},
	})
	a.record("create_payment_intent", err)
	if err != nil {
		return nil, err
	}
	return &PaymentIntent{
		ExternalID: order.ID,
		Amount:     money.FromMinorUnits(order.Amount, input.Currency),
		Currency:   input.Currency,
	}, nil
}

func (a *RazorpayAdapter) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*PaymentVerification, error) {
	if !a.client.VerifyPaymentSignature(input.PaymentID, input.SubscriptionID, input.Signature) {
		a.metrics.IncRequest("verify_payment", "rejected")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "payment signature verification failed")
	}

	payment, err := a.client.FetchPayment(ctx, input.PaymentID)
	a.record("verify_payment", err)
	if err != nil {
		return nil, err
	}

	currency := enums.Currency(payment.Currency)
	return &PaymentVerification{
		PaymentID: payment.ID,
		Amount:    money.FromMinorUnits(payment.Amount, currency),
		Currency:  currency,
		Captured:  payment.Captured || payment.Status == "captured",
	}, nil
}

func (a *RazorpayAdapter) FetchInvoices(ctx context.Context, externalID string) ([]Invoice, error) {
	raw, err := a.client.ListInvoices(ctx, externalID, 100)
	a.record("fetch_invoices", err)
	if err != nil {
		return nil, err
	}

	invoices := make([]Invoice, 0, len(raw))
	for _, item := range raw {
		currency := enums.Currency(item.Currency)
		invoices = append(invoices, Invoice{
			ExternalID: item.ID,
			PaymentID:  item.PaymentID,
			Amount:     money.FromMinorUnits(item.Amount, currency),
			Currency:   currency,
			Status:     item.Status,
			PaidAt:     time.Unix(item.PaidAt, 0).UTC(),
		})
	}
	return invoices, nil
}

func (a *RazorpayAdapter) VerifyWebhookSignature(body []byte, signature string) bool {
	return a.client.VerifyWebhookSignature(body, signature)
}
