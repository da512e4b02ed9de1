package billing

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikhilbhat/subwise-backend/api/responses"
	"github.com/nikhilbhat/subwise-backend/internal/catalog"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

type planPriceResponse struct {
	ID       uuid.UUID       `json:"id"`
	Region   string          `json:"region"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type planResponse struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	BillingCycle string              `json:"billing_cycle"`
	Freemium     bool                `json:"freemium"`
	Features     []string            `json:"features"`
	Prices       []planPriceResponse `json:"prices"`
}

// ListPlans serves the public pricing catalog: every active plan with its
// per-region price points.
func ListPlans(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := svc.ListPlans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]planResponse, 0, len(plans))
		for _, entry := range plans {
			prices := make([]planPriceResponse, 0, len(entry.Prices))
			for _, price := range entry.Prices {
				prices = append(prices, planPriceResponse{
					ID:       price.ID,
					Region:   price.Region.String(),
					Currency: price.Currency.String(),
					Amount:   price.Amount,
				})
			}
			out = append(out, planResponse{
				ID:           entry.Plan.ID,
				Name:         entry.Plan.Name,
				BillingCycle: entry.Plan.BillingCycle.String(),
				Freemium:     entry.Plan.Freemium,
				Features:     entry.Plan.Features,
				Prices:       prices,
			})
		}

		responses.WriteSuccess(w, out)
	}
}
