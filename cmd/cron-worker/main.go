package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhilbhat/subwise-backend/internal/catalog"
	"github.com/nikhilbhat/subwise-backend/internal/cron"
	"github.com/nikhilbhat/subwise-backend/internal/customers"
	"github.com/nikhilbhat/subwise-backend/internal/gateway"
	"github.com/nikhilbhat/subwise-backend/internal/ledger"
	"github.com/nikhilbhat/subwise-backend/internal/lifecycle"
	"github.com/nikhilbhat/subwise-backend/internal/notifications"
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
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	adapter, availability, err := gateway.New(context.Background(), cfg.Gateway, logg, gatewayMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gateway adapter", err)
		os.Exit(1)
	}
	if !availability.IsReady() {
		ctx := logg.WithField(context.Background(), "reason", availability.Reason())
		logg.Warn(ctx, "gateway unavailable, sweeps will skip provider calls")
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

	lifecycleService, err := lifecycle.NewService(lifecycle.ServiceParams{
		Tx:        dbClient,
		Repo:      lifecycle.NewRepository(gdb),
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

	renewalJob, err := cron.NewRenewalJob(logg, lifecycleService)
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal job", err)
		os.Exit(1)
	}
	graceJob, err := cron.NewGraceJob(logg, lifecycleService)
	if err != nil {
		logg.Error(context.Background(), "failed to create grace job", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewExpiryJob(logg, lifecycleService)
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry job", err)
		os.Exit(1)
	}
	pendingChangeJob, err := cron.NewPendingChangeJob(logg, lifecycleService)
	if err != nil {
		logg.Error(context.Background(), "failed to create pending change job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), cfg.Scheduler.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(renewalJob, graceJob, expiryJob, pendingChangeJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Scheduler.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	go serveMetrics(ctx, logg, cfg.Scheduler.MetricsPort)

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func serveMetrics(ctx context.Context, logg *logger.Logger, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}
