package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/db"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/metrics"
	"github.com/servicelink/servicelink-backend/pkg/migrate"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
	"github.com/servicelink/servicelink-backend/pkg/outbox/registry"
	"github.com/servicelink/servicelink-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

// With no arguments the binary runs the relay. "dlq ..." runs an operator
// command against the dead-letter table and exits.
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

	if err := run(ctx, cfg, logg, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, errDLQUsage) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			logg.Error(ctx, "outbox publisher failed", err)
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, args []string) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if len(args) > 0 {
		if args[0] != "dlq" {
			return errDLQUsage
		}
		return runDLQ(ctx, outbox.NewDLQRepository(dbClient.DB()), args[1:], os.Stdout)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	routes, err := registry.NewRoutes(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("build event routes: %w", err)
	}
	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	relay, err := NewRelay(RelayParams{
		Outbox:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		PubSub:     pubsubClient,
		Events:     outbox.NewRepository(dbClient.DB()),
		DeadLetter: outbox.NewDLQRepository(dbClient.DB()),
		Routes:     routes,
		Metrics:    metrics.NewOutboxMetrics(promRegistry),
	})
	if err != nil {
		return err
	}
	if err := metrics.Serve(ctx, cfg.Service.MetricsPort, promRegistry, logg); err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	logg.Info(logg.WithField(ctx, "topics", routes.Topics()), "starting outbox relay")
	if err := relay.Run(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "outbox relay shut down gracefully")
	return nil
}
