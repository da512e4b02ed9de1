package subscriptions

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/subwise-backend/api/middleware"
	"github.com/nikhilbhat/subwise-backend/api/responses"
	"github.com/nikhilbhat/subwise-backend/api/validators"
	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	"github.com/nikhilbhat/subwise-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

type activateFreemiumRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
	Region string `json:"region" validate:"required"`
}

type checkoutRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
	Region string `json:"region" validate:"required"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`
}

type confirmRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature,omitempty"`
}

type cancelRequest struct {
	Immediate bool `json:"immediate"`
}

type changePlanRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

type subscriptionResponse struct {
	ID                    uuid.UUID  `json:"id"`
	PlanID                string     `json:"plan_id"`
	Region                string     `json:"region"`
	Status                string     `json:"status"`
	StartDate             time.Time  `json:"start_date"`
	EndDate               time.Time  `json:"end_date"`
	AutoRenew             bool       `json:"auto_renew"`
	GracePeriodEnd        *time.Time `json:"grace_period_end,omitempty"`
	Gateway               string     `json:"gateway"`
	GatewaySubscriptionID *string    `json:"gateway_subscription_id,omitempty"`
	PreviousPlanID        *string    `json:"previous_plan_id,omitempty"`
	PendingPlanID         *string    `json:"pending_plan_id,omitempty"`
	PendingChangeAt       *time.Time `json:"pending_change_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

type checkoutResponse struct {
	Subscription subscriptionResponse `json:"subscription"`
	CheckoutURL  string               `json:"checkout_url"`
}

type quoteResponse struct {
	Kind              string          `json:"kind"`
	RemainingFraction decimal.Decimal `json:"remaining_fraction"`
	RemainingValue    decimal.Decimal `json:"remaining_value"`
	AmountDue         decimal.Decimal `json:"amount_due"`
	Credit            decimal.Decimal `json:"credit"`
	EffectiveAt       time.Time       `json:"effective_at"`
}

type upgradeResponse struct {
	Subscription subscriptionResponse `json:"subscription"`
	Quote        quoteResponse        `json:"quote"`
	PaymentID    *string              `json:"payment_id,omitempty"`
}

type downgradeResponse struct {
	Subscription subscriptionResponse `json:"subscription"`
	Quote        quoteResponse        `json:"quote"`
}

func newSubscriptionResponse(sub *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                    sub.ID,
		PlanID:                sub.PlanID,
		Region:                sub.Region.String(),
		Status:                sub.Status.String(),
		StartDate:             sub.StartDate,
		EndDate:               sub.EndDate,
		AutoRenew:             sub.AutoRenew,
		GracePeriodEnd:        sub.GracePeriodEnd,
		Gateway:               sub.Gateway.String(),
		GatewaySubscriptionID: sub.GatewaySubscriptionID,
		PreviousPlanID:        sub.PreviousPlanID,
		PendingPlanID:         sub.PendingPlanID,
		PendingChangeAt:       sub.PendingChangeAt,
		CreatedAt:             sub.CreatedAt,
	}
}

func authedUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

func subscriptionIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "subscriptionId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription id")
	}
	return id, nil
}

// ActivateFreemium starts a zero-cost subscription on a freemium plan.
func ActivateFreemium(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload activateFreemiumRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		region, err := enums.ParseRegion(payload.Region)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid region"))
			return
		}

		sub, err := svc.ActivateFreemium(r.Context(), lifecycle.ActivateFreemiumInput{
			UserID: userID,
			PlanID: payload.PlanID,
			Region: region,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newSubscriptionResponse(sub))
	}
}

// Checkout opens a paid subscription at the gateway and mirrors it locally in
// CREATED status.
func Checkout(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		region, err := enums.ParseRegion(payload.Region)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid region"))
			return
		}

		session, err := svc.CreatePaid(r.Context(), lifecycle.CreatePaidInput{
			UserID: userID,
			PlanID: payload.PlanID,
			Region: region,
			Name:   payload.Name,
			Email:  payload.Email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Subscription: newSubscriptionResponse(session.Subscription),
			CheckoutURL:  session.CheckoutURL,
		})
	}
}

// Confirm is the client's post-checkout callback; it verifies the payment
// with the gateway and activates the subscription.
func Confirm(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload confirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.ConfirmPayment(r.Context(), lifecycle.ConfirmPaymentInput{
			UserID:         userID,
			SubscriptionID: subID,
			PaymentID:      payload.PaymentID,
			Signature:      payload.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// Cancel stops a subscription, either immediately or at the cycle's end.
func Cancel(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := cancelRequest{}
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		sub, err := svc.Cancel(r.Context(), lifecycle.CancelInput{
			UserID:         userID,
			SubscriptionID: subID,
			Immediate:      payload.Immediate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// Upgrade moves the subscription to a pricier plan immediately, charging the
// prorated difference.
func Upgrade(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload changePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Upgrade(r.Context(), lifecycle.ChangePlanInput{
			UserID:         userID,
			SubscriptionID: subID,
			NewPlanID:      payload.PlanID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := upgradeResponse{
			Subscription: newSubscriptionResponse(result.Subscription),
			Quote: quoteResponse{
				Kind:              string(result.Quote.Kind),
				RemainingFraction: result.Quote.RemainingFraction,
				RemainingValue:    result.Quote.RemainingValue,
				AmountDue:         result.Quote.AmountDue,
				Credit:            result.Quote.Credit,
				EffectiveAt:       result.Quote.EffectiveAt,
			},
		}
		if result.Intent != nil {
			resp.PaymentID = &result.Intent.ExternalID
		}

		responses.WriteSuccess(w, resp)
	}
}

// Downgrade queues a move to a cheaper plan for the end of the paid cycle.
func Downgrade(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload changePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		schedule, err := svc.ScheduleDowngrade(r.Context(), lifecycle.ChangePlanInput{
			UserID:         userID,
			SubscriptionID: subID,
			NewPlanID:      payload.PlanID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, downgradeResponse{
			Subscription: newSubscriptionResponse(schedule.Subscription),
			Quote: quoteResponse{
				Kind:              string(schedule.Quote.Kind),
				RemainingFraction: schedule.Quote.RemainingFraction,
				RemainingValue:    schedule.Quote.RemainingValue,
				AmountDue:         schedule.Quote.AmountDue,
				Credit:            schedule.Quote.Credit,
				EffectiveAt:       schedule.Quote.EffectiveAt,
			},
		})
	}
}

// Detail returns one of the caller's subscriptions.
func Detail(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := subscriptionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.GetForUser(r.Context(), userID, subID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// List returns every subscription the caller has ever held, newest first.
func List(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subs, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]subscriptionResponse, 0, len(subs))
		for i := range subs {
			out = append(out, newSubscriptionResponse(&subs[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// Entitlement answers "what does this user get right now". A user with no
// entitled subscription gets a null body, not an error.
func Entitlement(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Entitlement(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sub == nil {
			responses.WriteSuccess(w, nil)
			return
		}

		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}
