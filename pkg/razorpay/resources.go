package razorpay

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Customer is the gateway-side payer record.
type Customer struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Email string            `json:"email"`
	Notes map[string]string `json:"notes"`
}

// CustomerCreateParams creates or reuses a payer. FailExisting "0" makes the
// gateway return the existing customer instead of erroring on a duplicate.
type CustomerCreateParams struct {
	Name  string            `json:"name"`
	Email string            `json:"email"`
	Notes map[string]string `json:"notes,omitempty"`
}

type customerCreateRequest struct {
	CustomerCreateParams
	FailExisting string `json:"fail_existing"`
}

// CreateCustomer ensures a payer record exists for the given identity.
func (c *Client) CreateCustomer(ctx context.Context, params CustomerCreateParams) (*Customer, error) {
	req := customerCreateRequest{CustomerCreateParams: params, FailExisting: "0"}
	out := &Customer{}
	if err := c.do(ctx, http.MethodPost, "/customers", nil, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlanItem is the priced line inside a gateway plan. Amount is in minor units.
type PlanItem struct {
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Plan mirrors the gateway plan object.
type Plan struct {
	ID       string   `json:"id"`
	Period   string   `json:"period"`
	Interval int      `json:"interval"`
	Item     PlanItem `json:"item"`
}

// PlanCreateParams defines a recurring price point. Period is "monthly" or
// "yearly"; Interval is the cycle multiplier and is always 1 here.
type PlanCreateParams struct {
	Period   string   `json:"period"`
	Interval int      `json:"interval"`
	Item     PlanItem `json:"item"`
}

// CreatePlan registers a plan price with the gateway.
func (c *Client) CreatePlan(ctx context.Context, params PlanCreateParams) (*Plan, error) {
	out := &Plan{}
	if err := c.do(ctx, http.MethodPost, "/plans", nil, params, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscription mirrors the gateway subscription object.
type Subscription struct {
	ID         string            `json:"id"`
	PlanID     string            `json:"plan_id"`
	CustomerID string            `json:"customer_id"`
	Status     string            `json:"status"`
	ShortURL   string            `json:"short_url"`
	Notes      map[string]string `json:"notes"`
}

// SubscriptionCreateParams starts a recurring mandate. Notes carry the local
// user id so webhook payloads can always be traced back to an account.
type SubscriptionCreateParams struct {
	PlanID         string            `json:"plan_id"`
	CustomerID     string            `json:"customer_id,omitempty"`
	TotalCount     int               `json:"total_count"`
	CustomerNotify int               `json:"customer_notify"`
	Notes          map[string]string `json:"notes,omitempty"`
}

// CreateSubscription opens a mandate for the plan.
func (c *Client) CreateSubscription(ctx context.Context, params SubscriptionCreateParams) (*Subscription, error) {
	out := &Subscription{}
	if err := c.do(ctx, http.MethodPost, "/subscriptions", nil, params, out); err != nil {
		return nil, err
	}
	return out, nil
}

type subscriptionCancelRequest struct {
	CancelAtCycleEnd int `json:"cancel_at_cycle_end"`
}

// CancelSubscription stops the mandate, either immediately or at cycle end.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string, atCycleEnd bool) (*Subscription, error) {
	req := subscriptionCancelRequest{}
	if atCycleEnd {
		req.CancelAtCycleEnd = 1
	}
	out := &Subscription{}
	if err := c.do(ctx, http.MethodPost, "/subscriptions/"+subscriptionID+"/cancel", nil, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubscriptionUpdateParams switches the mandate to a different plan.
// ScheduleChangeAt is "now" for upgrades and "cycle_end" for downgrades.
type SubscriptionUpdateParams struct {
	PlanID           string `json:"plan_id"`
	ScheduleChangeAt string `json:"schedule_change_at,omitempty"`
}

// UpdateSubscription moves the mandate onto another plan.
func (c *Client) UpdateSubscription(ctx context.Context, subscriptionID string, params SubscriptionUpdateParams) (*Subscription, error) {
	out := &Subscription{}
	if err := c.do(ctx, http.MethodPatch, "/subscriptions/"+subscriptionID, nil, params, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Payment mirrors the gateway payment object. Amount is in minor units.
type Payment struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	OrderID  string `json:"order_id"`
	Captured bool   `json:"captured"`
}

// FetchPayment reads a payment back from the gateway.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	out := &Payment{}
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Order is a one-shot payment intent, used for proration charges.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Receipt  string `json:"receipt"`
}

// OrderCreateParams opens a payment intent. Amount is in minor units.
type OrderCreateParams struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder opens a one-shot payment intent.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*Order, error) {
	out := &Order{}
	if err := c.do(ctx, http.MethodPost, "/orders", nil, params, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Invoice is a settled charge attached to a subscription.
type Invoice struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	PaymentID      string `json:"payment_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	PaidAt         int64  `json:"paid_at"`
}

type invoiceListResponse struct {
	Count int       `json:"count"`
	Items []Invoice `json:"items"`
}

// ListInvoices returns the invoices for a subscription, newest first.
func (c *Client) ListInvoices(ctx context.Context, subscriptionID string, count int) ([]Invoice, error) {
	query := url.Values{}
	query.Set("subscription_id", subscriptionID)
	if count > 0 {
		query.Set("count", strconv.Itoa(count))
	}
	out := &invoiceListResponse{}
	if err := c.do(ctx, http.MethodGet, "/invoices", query, nil, out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
