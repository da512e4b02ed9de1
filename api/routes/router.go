package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhat/subwise-backend/api/controllers"
	billingcontrollers "github.com/nikhilbhat/subwise-backend/api/controllers/billing"
	subscriptioncontrollers "github.com/nikhilbhat/subwise-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/nikhilbhat/subwise-backend/api/controllers/webhooks"
	"github.com/nikhilbhat/subwise-backend/api/middleware"
	"github.com/nikhilbhat/subwise-backend/internal/catalog"
	"github.com/nikhilbhat/subwise-backend/internal/gateway"
	"github.com/nikhilbhat/subwise-backend/internal/invoices"
	"github.com/nikhilbhat/subwise-backend/internal/ledger"
	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/internal/notifications"
	webhooksvc "github.com/nikhilbhat/subwise-backend/internal/webhooks"
	"github.com/nikhilbhat/subwise-backend/pkg/config"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

// Deps carries every collaborator the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DBPinger controllers.Pinger
	Redis    controllers.Pinger

	Catalog       catalog.Service
	Lifecycle     lifecycle.Service
	Ledger        ledger.Service
	Invoices      invoices.Service
	Webhooks      webhooksvc.Service
	Notifications notifications.Repository
	Adapter       gateway.Adapter
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, deps.Redis))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Get("/v1/plans", billingcontrollers.ListPlans(deps.Catalog, logg))
	})

	// Webhooks authenticate with the gateway signature, never a bearer token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", webhookcontrollers.GatewayWebhook(deps.Webhooks, deps.Adapter, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", subscriptioncontrollers.List(deps.Lifecycle, logg))
			r.Get("/entitlement", subscriptioncontrollers.Entitlement(deps.Lifecycle, logg))
			r.Post("/freemium", subscriptioncontrollers.ActivateFreemium(deps.Lifecycle, logg))
			r.Post("/checkout", subscriptioncontrollers.Checkout(deps.Lifecycle, logg))
			r.Route("/{subscriptionId}", func(r chi.Router) {
				r.Get("/", subscriptioncontrollers.Detail(deps.Lifecycle, logg))
				r.Post("/confirm", subscriptioncontrollers.Confirm(deps.Lifecycle, logg))
				r.Post("/cancel", subscriptioncontrollers.Cancel(deps.Lifecycle, logg))
				r.Post("/upgrade", subscriptioncontrollers.Upgrade(deps.Lifecycle, logg))
				r.Post("/downgrade", subscriptioncontrollers.Downgrade(deps.Lifecycle, logg))
				r.Get("/invoices", billingcontrollers.SubscriptionInvoices(deps.Invoices, logg))
				r.Post("/invoices/backfill", billingcontrollers.BackfillInvoices(deps.Invoices, logg))
			})
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/transactions", billingcontrollers.ListTransactions(deps.Ledger, logg))
			r.Get("/invoices", billingcontrollers.ListInvoices(deps.Invoices, logg))
		})

		r.Get("/notifications", controllers.ListNotifications(deps.Notifications, logg))
	})

	return r
}
