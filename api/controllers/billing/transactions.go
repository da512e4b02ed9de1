package billing

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/subwise-backend/api/middleware"
	"github.com/nikhilbhat/subwise-backend/api/responses"
	"github.com/nikhilbhat/subwise-backend/api/validators"
	"github.com/nikhilbhat/subwise-backend/internal/ledger"
	"github.com/nikhilbhat/subwise-backend/pkg/db/models"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
	"github.com/nikhilbhat/subwise-backend/pkg/pagination"
)

type transactionResponse struct {
	ID                   uuid.UUID       `json:"id"`
	SubscriptionID       uuid.UUID       `json:"subscription_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Gateway              string          `json:"gateway"`
	GatewayTransactionID string          `json:"gateway_transaction_id"`
	Status               string          `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
}

type transactionPageResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

func newTransactionResponse(txn models.Transaction) transactionResponse {
	return transactionResponse{
		ID:                   txn.ID,
		SubscriptionID:       txn.SubscriptionID,
		Amount:               txn.Amount,
		Currency:             txn.Currency.String(),
		Gateway:              txn.Gateway.String(),
		GatewayTransactionID: txn.GatewayTransactionID,
		Status:               txn.Status.String(),
		CreatedAt:            txn.CreatedAt,
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

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}, nil
}

// ListTransactions serves the caller's ledger history, newest first.
func ListTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListForUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := transactionPageResponse{
			Transactions: make([]transactionResponse, 0, len(page.Transactions)),
			NextCursor:   page.NextCursor,
		}
		for _, txn := range page.Transactions {
			out.Transactions = append(out.Transactions, newTransactionResponse(txn))
		}

		responses.WriteSuccess(w, out)
	}
}
