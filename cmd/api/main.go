package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/servicelink/servicelink-backend/api/controllers"
	"github.com/servicelink/servicelink-backend/api/routes"
	"github.com/servicelink/servicelink-backend/internal/billing"
	"github.com/servicelink/servicelink-backend/internal/bookings"
	"github.com/servicelink/servicelink-backend/internal/jobs"
	"github.com/servicelink/servicelink-backend/internal/leads"
	"github.com/servicelink/servicelink-backend/internal/ledger"
	"github.com/servicelink/servicelink-backend/internal/messages"
	"github.com/servicelink/servicelink-backend/internal/payments"
	"github.com/servicelink/servicelink-backend/internal/privacy"
	"github.com/servicelink/servicelink-backend/internal/providers"
	"github.com/servicelink/servicelink-backend/internal/services"
	"github.com/servicelink/servicelink-backend/internal/subscriptions"
	"github.com/servicelink/servicelink-backend/pkg/auth"
	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/db"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/metrics"
	"github.com/servicelink/servicelink-backend/pkg/migrate"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
	"github.com/servicelink/servicelink-backend/pkg/paystack"
	"github.com/servicelink/servicelink-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
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

	paystackClient, err := paystack.NewClient(
		cfg.Paystack.SecretKey,
		paystack.WithBaseURL(cfg.Paystack.BaseURL),
		paystack.WithTimeout(cfg.Paystack.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack client", err)
		os.Exit(1)
	}

	tokens, err := auth.NewVerifier(cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create token verifier", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	gormDB := dbClient.DB()
	bookingRepo := bookings.NewRepository(gormDB)
	providerRepo := providers.NewRepository(gormDB)
	leadRepo := leads.NewRepository(gormDB)
	jobRepo := jobs.NewRepository(gormDB)
	offeringRepo := services.NewRepository(gormDB)
	emitter := outbox.NewService(outbox.NewRepository(gormDB), logg)

	ledgerService, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Profiles:          providerRepo,
		BillingRepo:       billing.NewRepository(gormDB),
		Leads:             leadRepo,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Metrics:           bookingMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	bookingService, err := bookings.NewService(bookings.ServiceParams{
		Repo:              bookingRepo,
		Profiles:          providerRepo,
		Offerings:         offeringRepo,
		Gate:              subscriptionService,
		Ledger:            ledgerService,
		Payments:          paystackClient,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Metrics:           bookingMetrics,
		Logger:            logg,
		Currency:          cfg.Bookings.Currency,
		CallbackURL:       cfg.Paystack.Callback(cfg.App.PublicURL),
		MinimumQuote:      cfg.Bookings.MinimumQuote,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create booking service", err)
		os.Exit(1)
	}

	webhookGuard, err := payments.NewWebhookGuard(redisClient, cfg.Paystack.WebhookTTL, "paystack")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Bookings:          bookingRepo,
		Profiles:          providerRepo,
		Ledger:            ledgerService,
		Gateway:           paystackClient,
		Guard:             webhookGuard,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Metrics:           bookingMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	jobService, err := jobs.NewService(jobRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create job service", err)
		os.Exit(1)
	}

	leadService, err := leads.NewService(leads.ServiceParams{
		Repo:              leadRepo,
		Profiles:          providerRepo,
		JobPosts:          jobRepo,
		Gate:              subscriptionService,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		RateLimiter:       redisClient,
		UnlockLimit:       cfg.Leads.UnlockLimit,
		UnlockWindow:      cfg.Leads.UnlockWindow,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create lead service", err)
		os.Exit(1)
	}

	providerService, err := providers.NewService(providerRepo, bookingRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create provider service", err)
		os.Exit(1)
	}

	offeringService, err := services.NewService(services.ServiceParams{
		Repo:     offeringRepo,
		Profiles: providerRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create service offering service", err)
		os.Exit(1)
	}

	messageService, err := messages.NewService(messages.ServiceParams{
		Repo:     messages.NewRepository(gormDB),
		Bookings: bookingRepo,
		Filter:   privacy.Default(),
		Metrics:  bookingMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create message service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			Tokens:   tokens,
			Redis:    redisClient,
			Gatherer: registry,
			Metrics:  metrics.NewHTTPMetrics(registry),
			Ready: map[string]controllers.Pinger{
				"postgres": dbClient,
				"redis":    redisClient,
			},
			Bookings:      bookingService,
			Payments:      paymentService,
			Subscriptions: subscriptionService,
			Jobs:          jobService,
			Leads:         leadService,
			Providers:     providerService,
			Services:      offeringService,
			Messages:      messageService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
