package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/localtable/localtable-backend/api/routes"
	checkoutsvc "github.com/localtable/localtable-backend/internal/checkout"
	paymentsvc "github.com/localtable/localtable-backend/internal/payments"
	"github.com/localtable/localtable-backend/internal/vendoraccounts"
	stripewebhook "github.com/localtable/localtable-backend/internal/webhooks/stripe"
	"github.com/localtable/localtable-backend/pkg/config"
	"github.com/localtable/localtable-backend/pkg/db"
	"github.com/localtable/localtable-backend/pkg/logger"
	"github.com/localtable/localtable-backend/pkg/metrics"
	"github.com/localtable/localtable-backend/pkg/migrate"
	"github.com/localtable/localtable-backend/pkg/orderstatus"
	"github.com/localtable/localtable-backend/pkg/outbox"
	"github.com/localtable/localtable-backend/pkg/redis"
	"github.com/localtable/localtable-backend/pkg/stripe"
	"github.com/localtable/localtable-backend/pkg/vendordirectory"
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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(metricsRegistry)

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}
	processorClient, err := stripe.NewProcessor(stripeClient, stripe.WithMetrics(paymentMetrics))
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap processor", err)
		os.Exit(1)
	}

	oracleClient, err := orderstatus.NewClient(cfg.OrderStatus.BaseURL, orderstatus.WithTimeout(cfg.OrderStatus.Timeout))
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap order status client", err)
		os.Exit(1)
	}
	directoryClient, err := vendordirectory.NewClient(cfg.VendorDirectory.BaseURL, vendordirectory.WithTimeout(cfg.VendorDirectory.Timeout))
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap vendor directory client", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	vendorAccountRepo := vendoraccounts.NewRepository(dbClient.DB())
	vendorAccountService, err := vendoraccounts.NewService(vendoraccounts.ServiceParams{
		Repository: vendorAccountRepo,
		Directory:  directoryClient,
		Processor:  processorClient,
		Payments:   cfg.Payments,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create vendor account service", err)
		os.Exit(1)
	}

	paymentsRepo := paymentsvc.NewRepository(dbClient.DB())
	paymentsService, err := paymentsvc.NewService(paymentsvc.ServiceParams{
		Tx:        dbClient,
		Repo:      paymentsRepo,
		Oracle:    oracleClient,
		Processor: processorClient,
		Outbox:    outboxService,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Accounts:  vendorAccountRepo,
		Processor: processorClient,
		Intents:   paymentsRepo,
		Payments:  cfg.Payments,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		PaymentsRepo:      paymentsRepo,
		Accounts:          vendorAccountService,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
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
			metricsRegistry,
			checkoutService,
			paymentsService,
			vendorAccountService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
