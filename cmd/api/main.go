package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nikhilbhat/subwise-backend/api"
	"github.com/nikhilbhat/subwise-backend/api/routes"
	"github.com/nikhilbhat/subwise-backend/internal/catalog"
	"github.com/nikhilbhat/subwise-backend/internal/customers"
	"github.com/nikhilbhat/subwise-backend/internal/gateway"
	"github.com/nikhilbhat/subwise-backend/internal/invoices"
	"github.com/nikhilbhat/subwise-backend/internal/ledger"
	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/internal/notifications"
	webhooksvc "github.com/nikhilbhat/subwise-backend/internal/webhooks"
	"github.com/nikhilbhat/subwise-backend/pkg/config"
	"github.com/nikhilbhat/subwise-backend/pkg/db"
	"github.com/nikhilbhat/subwise-backend/pkg/instance"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
	"github.com/nikhilbhat/subwise-backend/pkg/metrics"
	"github.com/nikhilbhat/subwise-backend/pkg/migrate"
	"github.com/nikhilbhat/subwise-backend/pkg/pubsub"
	"github.com/nikhilbhat/subwise-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayMetrics := metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)
	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	adapter, availability, err := gateway.New(context.Background(), cfg.Gateway, logg, gatewayMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gateway adapter", err)
		os.Exit(1)
	}
	if !availability.IsReady() {
		ctx := logg.WithField(context.Background(), "reason", availability.Reason())
		logg.Warn(ctx, "gateway unavailable, paid checkout will be rejected")
	}

	gdb := dbClient.DB()
	notificationsRepo := notifications.NewRepository(gdb)

	var notifier notifications.Notifier
	if cfg.PubSub.NotificationsTopic != "" && cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		notifier, err = notifications.NewPubSubNotifier(pubsubClient.NotificationsPublisher(), notificationsRepo, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create notifier", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "pubsub not configured, notifications are log-only")
		notifier = notifications.NewLogNotifier(notificationsRepo, logg)
	}

	catalogService, err := catalog.NewService(catalog.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	lifecycleRepo := lifecycle.NewRepository(gdb)
	lifecycleService, err := lifecycle.NewService(lifecycle.ServiceParams{
		Tx:        dbClient,
		Repo:      lifecycleRepo,
		Catalog:   catalogService,
		Ledger:    ledgerService,
		Customers: customers.NewRepository(gdb),
		Adapter:   adapter,
		Notifier:  notifier,
		Logger:    logg,
		Scheduler: cfg.Scheduler,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create lifecycle service", err)
		os.Exit(1)
	}

	webhookService, err := webhooksvc.NewService(webhooksvc.ServiceParams{
		Tx:        dbClient,
		Repo:      webhooksvc.NewRepository(gdb),
		Lifecycle: lifecycleService,
		Ledger:    ledgerService,
		Notifier:  notifier,
		Metrics:   webhookMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	invoiceService, err := invoices.NewService(invoices.ServiceParams{
		Ledger:        ledgerService,
		Subscriptions: lifecycleRepo,
		Catalog:       catalogService,
		Adapter:       adapter,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invoice service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	handler := routes.NewRouter(routes.Deps{
		Config:        cfg,
		Logger:        logg,
		DBPinger:      dbClient,
		Redis:         redisClient,
		Catalog:       catalogService,
		Lifecycle:     lifecycleService,
		Ledger:        ledgerService,
		Invoices:      invoiceService,
		Webhooks:      webhookService,
		Notifications: notificationsRepo,
		Adapter:       adapter,
	})

	server := api.NewServer(addr, handler)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
