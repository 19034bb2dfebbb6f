package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lumora-ai/lumora-backend/api/routes"
	"github.com/lumora-ai/lumora-backend/internal/apikeys"
	"github.com/lumora-ai/lumora-backend/internal/grants"
	"github.com/lumora-ai/lumora-backend/internal/ledger"
	"github.com/lumora-ai/lumora-backend/internal/plans"
	"github.com/lumora-ai/lumora-backend/internal/ratelimit"
	"github.com/lumora-ai/lumora-backend/internal/subscriptions"
	"github.com/lumora-ai/lumora-backend/internal/usage"
	"github.com/lumora-ai/lumora-backend/pkg/bigquery"
	"github.com/lumora-ai/lumora-backend/pkg/config"
	"github.com/lumora-ai/lumora-backend/pkg/db"
	"github.com/lumora-ai/lumora-backend/pkg/idempotency"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
	"github.com/lumora-ai/lumora-backend/pkg/metrics"
	"github.com/lumora-ai/lumora-backend/pkg/migrate"
	"github.com/lumora-ai/lumora-backend/pkg/redis"
)

const webhookGuardTTL = 48 * time.Hour

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

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	// Analytics export is optional; the API runs without a GCP project.
	var analyticsSink usage.AnalyticsSink
	if cfg.GCP.ProjectID != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()
		analyticsSink = bqClient
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Client:  dbClient,
		Repo:    ledger.NewRepository(dbClient.DB()),
		Metrics: ledgerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	planService, err := plans.NewService(plans.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create plans service", err)
		os.Exit(1)
	}

	usageService, err := usage.NewService(usage.ServiceParams{
		Client:    dbClient,
		Repo:      usage.NewRepository(dbClient.DB()),
		Ledger:    ledgerService,
		Analytics: analyticsSink,
		Logger:    logg,
		Metrics:   ledgerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage service", err)
		os.Exit(1)
	}

	keyService, err := apikeys.NewService(apikeys.ServiceParams{
		Repo:   apikeys.NewRepository(dbClient.DB()),
		Plans:  planService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create api key service", err)
		os.Exit(1)
	}

	limiter, err := ratelimit.NewService(ratelimit.ServiceParams{
		Store:   redisClient,
		Plans:   planService,
		Window:  cfg.RateLimit.Window,
		Metrics: ledgerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create rate limiter", err)
		os.Exit(1)
	}

	grantService, err := grants.NewService(grants.ServiceParams{
		Ledger:     ledgerService,
		Plans:      planService,
		Logger:     logg,
		BatchLimit: cfg.Grants.BatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create grants service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	webhookGuard, err := idempotency.NewManager(redisClient, webhookGuardTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			ledgerService,
			usageService,
			planService,
			keyService,
			limiter,
			grantService,
			subscriptionService,
			webhookGuard,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
