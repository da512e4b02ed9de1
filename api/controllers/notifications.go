package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhat/subwise-backend/api/middleware"
	"github.com/nikhilbhat/subwise-backend/api/responses"
	"github.com/nikhilbhat/subwise-backend/api/validators"
	"github.com/nikhilbhat/subwise-backend/internal/notifications"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

type notificationResponse struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListNotifications serves the caller's lifecycle notification history.
func ListNotifications(repo notifications.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications repository unavailable"))
			return
		}

		raw := middleware.UserIDFromContext(r.Context())
		userID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := repo.ListByUser(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]notificationResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, notificationResponse{
				ID:          row.ID,
				Kind:        row.Kind.String(),
				Payload:     row.Payload,
				DeliveredAt: row.DeliveredAt,
				CreatedAt:   row.CreatedAt,
			})
		}

		responses.WriteSuccess(w, out)
	}
}
