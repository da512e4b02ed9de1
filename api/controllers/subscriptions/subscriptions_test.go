package subscriptions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nikhilbhat/subwise-backend/api/middleware"
	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/internal/proration"
	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	"github.com/nikhilbhat/subwise-backend/pkg/types"
)

type stubLifecycle struct {
	freemiumInput lifecycle.ActivateFreemiumInput
	checkoutInput lifecycle.CreatePaidInput
	cancelInput   lifecycle.CancelInput
	changeInput   lifecycle.ChangePlanInput

	sub      *models.Subscription
	checkout *lifecycle.CheckoutSession
	upgrade  *lifecycle.UpgradeResult
	err      error
}

func (s *stubLifecycle) ApplyEventInTx(context.Context, *gorm.DB, lifecycle.ApplyEventInput) (*lifecycle.ApplyResult, error) {
	return nil, nil
}

func (s *stubLifecycle) ActivateFreemium(_ context.Context, input lifecycle.ActivateFreemiumInput) (*models.Subscription, error) {
	s.freemiumInput = input
	return s.sub, s.err
}

func (s *stubLifecycle) CreatePaid(_ context.Context, input lifecycle.CreatePaidInput) (*lifecycle.CheckoutSession, error) {
	s.checkoutInput = input
	return s.checkout, s.err
}

func (s *stubLifecycle) ConfirmPayment(context.Context, lifecycle.ConfirmPaymentInput) (*models.Subscription, error) {
	return s.sub, s.err
}

func (s *stubLifecycle) Cancel(_ context.Context, input lifecycle.CancelInput) (*models.Subscription, error) {
	s.cancelInput = input
	return s.sub, s.err
}

func (s *stubLifecycle) Upgrade(_ context.Context, input lifecycle.ChangePlanInput) (*lifecycle.UpgradeResult, error) {
	s.changeInput = input
	return s.upgrade, s.err
}

func (s *stubLifecycle) ScheduleDowngrade(_ context.Context, input lifecycle.ChangePlanInput) (*lifecycle.DowngradeSchedule, error) {
	s.changeInput = input
	return &lifecycle.DowngradeSchedule{Subscription: s.sub}, s.err
}

func (s *stubLifecycle) GetForUser(context.Context, uuid.UUID, uuid.UUID) (*models.Subscription, error) {
	return s.sub, s.err
}

func (s *stubLifecycle) ListForUser(context.Context, uuid.UUID) ([]models.Subscription, error) {
	if s.sub == nil {
		return nil, s.err
	}
	return []models.Subscription{*s.sub}, s.err
}

func (s *stubLifecycle) Entitlement(context.Context, uuid.UUID) (*models.Subscription, error) {
	return s.sub, s.err
}

func (s *stubLifecycle) RenewDue(context.Context, time.Time) (lifecycle.SweepReport, error) {
	return lifecycle.SweepReport{}, nil
}

func (s *stubLifecycle) SweepExpiredToGrace(context.Context, time.Time) (lifecycle.SweepReport, error) {
	return lifecycle.SweepReport{}, nil
}

func (s *stubLifecycle) SweepGraceToExpired(context.Context, time.Time) (lifecycle.SweepReport, error) {
	return lifecycle.SweepReport{}, nil
}

func (s *stubLifecycle) ApplyPendingChanges(context.Context, time.Time) (lifecycle.SweepReport, error) {
	return lifecycle.SweepReport{}, nil
}

func sampleSubscription(userID uuid.UUID) *models.Subscription {
	now := time.Now().UTC()
	return &models.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    "pro",
		Region:    enums.RegionIndia,
		Status:    enums.SubscriptionStatusActive,
		StartDate: now,
		EndDate:   now.AddDate(0, 1, 0),
		AutoRenew: true,
		Gateway:   enums.GatewayRazorpay,
	}
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestActivateFreemiumCreatesSubscription(t *testing.T) {
	userID := uuid.New()
	svc := &stubLifecycle{sub: sampleSubscription(userID)}
	handler := ActivateFreemium(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/freemium", `{"plan_id":"free","region":"IN"}`, userID)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.freemiumInput.PlanID != "free" {
		t.Fatalf("unexpected plan id %q", svc.freemiumInput.PlanID)
	}
	if svc.freemiumInput.Region != enums.RegionIndia {
		t.Fatalf("unexpected region %q", svc.freemiumInput.Region)
	}
	if svc.freemiumInput.UserID != userID {
		t.Fatal("expected the authenticated user to own the subscription")
	}
}

func TestActivateFreemiumRejectsUnknownRegion(t *testing.T) {
	userID := uuid.New()
	svc := &stubLifecycle{sub: sampleSubscription(userID)}
	handler := ActivateFreemium(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/freemium", `{"plan_id":"free","region":"MARS"}`, userID)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestActivateFreemiumRequiresAuth(t *testing.T) {
	handler := ActivateFreemium(&stubLifecycle{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/freemium", strings.NewReader(`{"plan_id":"free","region":"IN"}`))
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user context, got %d", resp.Code)
	}
}

func TestCheckoutReturnsCheckoutURL(t *testing.T) {
	userID := uuid.New()
	sub := sampleSubscription(userID)
	sub.Status = enums.SubscriptionStatusCreated
	svc := &stubLifecycle{checkout: &lifecycle.CheckoutSession{Subscription: sub, CheckoutURL: "https://rzp.io/i/abc"}}
	handler := Checkout(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/checkout", `{"plan_id":"pro","region":"IN","email":"u@example.com"}`, userID)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data := body.Data.(map[string]any)
	if data["checkout_url"] != "https://rzp.io/i/abc" {
		t.Fatalf("unexpected checkout url %v", data["checkout_url"])
	}
	if svc.checkoutInput.Email != "u@example.com" {
		t.Fatalf("unexpected email %q", svc.checkoutInput.Email)
	}
}

func TestCancelForwardsImmediateFlag(t *testing.T) {
	userID := uuid.New()
	sub := sampleSubscription(userID)
	svc := &stubLifecycle{sub: sub}
	handler := Cancel(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+sub.ID.String()+"/cancel", `{"immediate":true}`, userID)
	req = withURLParam(req, "subscriptionId", sub.ID.String())
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !svc.cancelInput.Immediate {
		t.Fatal("expected immediate cancel to be forwarded")
	}
	if svc.cancelInput.SubscriptionID != sub.ID {
		t.Fatal("expected path id to be forwarded")
	}
}

func TestCancelRejectsMalformedSubscriptionID(t *testing.T) {
	userID := uuid.New()
	handler := Cancel(&stubLifecycle{}, nil)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/not-a-uuid/cancel", "", userID)
	req = withURLParam(req, "subscriptionId", "not-a-uuid")
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestUpgradeReturnsQuoteAndPaymentID(t *testing.T) {
	userID := uuid.New()
	sub := sampleSubscription(userID)
	svc := &stubLifecycle{upgrade: &lifecycle.UpgradeResult{
		Subscription: sub,
		Quote: proration.Quote{
			Kind:      proration.ChangeUpgrade,
			AmountDue: decimal.NewFromFloat(15.00),
		},
	}}
	handler := Upgrade(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+sub.ID.String()+"/upgrade", `{"plan_id":"premium"}`, userID)
	req = withURLParam(req, "subscriptionId", sub.ID.String())
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.changeInput.NewPlanID != "premium" {
		t.Fatalf("unexpected new plan %q", svc.changeInput.NewPlanID)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	quote := body.Data.(map[string]any)["quote"].(map[string]any)
	if quote["kind"] != string(proration.ChangeUpgrade) {
		t.Fatalf("unexpected quote kind %v", quote["kind"])
	}
}

func TestEntitlementReturnsNullWhenNothingActive(t *testing.T) {
	userID := uuid.New()
	handler := Entitlement(&stubLifecycle{}, nil)

	req := authedRequest(http.MethodGet, "/api/v1/subscriptions/entitlement", "", userID)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data != nil {
		t.Fatalf("expected null entitlement, got %v", body.Data)
	}
}
