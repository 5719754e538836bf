package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/servicelink/servicelink-backend/internal/messages"
	"github.com/servicelink/servicelink-backend/internal/providers"
	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/db"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/metrics"
	"github.com/servicelink/servicelink-backend/pkg/outbox/idempotency"
	"github.com/servicelink/servicelink-backend/pkg/pubsub"
	"github.com/servicelink/servicelink-backend/pkg/redis"
)

const serviceKind = "worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: loading config: %v\n", serviceKind, err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "worker shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeLogged(logg, "database", dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeLogged(logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeLogged(logg, "pubsub", pubsubClient.Close)

	if err := pubsubClient.CheckSubscription(ctx, cfg.PubSub.BookingMessagesSubscription); err != nil {
		return err
	}

	claims, err := idempotency.NewManager(redisClient, idempotency.DefaultTTL)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	bookingMessages, err := messages.NewConsumer(
		messages.NewRepository(dbClient.DB()),
		providers.NewRepository(dbClient.DB()),
		pubsubClient.Subscriber(cfg.PubSub.BookingMessagesSubscription),
		claims,
		logg,
		metrics.NewConsumerMetrics(promRegistry),
	)
	if err != nil {
		return fmt.Errorf("booking messages consumer: %w", err)
	}

	supervisor, err := NewSupervisor(logg, map[string]db.Pinger{
		"database": dbClient,
		"redis":    redisClient,
		"pubsub":   pubsubClient,
	}, bookingMessages)
	if err != nil {
		return err
	}
	if err := metrics.Serve(ctx, cfg.Service.MetricsPort, promRegistry, logg); err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	logg.Info(ctx, "starting worker")
	return supervisor.Run(ctx)
}

func closeLogged(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
