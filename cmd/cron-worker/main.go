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
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/internal/billing"
	"github.com/servicelink/servicelink-backend/internal/cron"
	"github.com/servicelink/servicelink-backend/internal/leads"
	"github.com/servicelink/servicelink-backend/internal/providers"
	"github.com/servicelink/servicelink-backend/internal/subscriptions"
	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/db"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/metrics"
	"github.com/servicelink/servicelink-backend/pkg/migrate"
	"github.com/servicelink/servicelink-backend/pkg/outbox"
	"github.com/servicelink/servicelink-backend/pkg/redis"
)

const serviceKind = "cron-worker"

var errUsage = errors.New("usage: cron-worker [once [job ...]]")

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
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down gracefully")
}

// run starts the scheduler, or with "once" runs the named jobs (all when none
// are named) a single time and exits.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, args []string) error {
	once := len(args) > 0 && args[0] == "once"
	if len(args) > 0 && !once {
		return errUsage
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeLogged(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeLogged(logg, "redis", redisClient.Close)

	promRegistry := prometheus.NewRegistry()
	jobs, err := buildJobs(cfg, logg, dbClient, promRegistry)
	if err != nil {
		return err
	}
	if once {
		if jobs, err = jobs.Select(args[1:]...); err != nil {
			return err
		}
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(promRegistry),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "jobs", jobs.Names())
	if once {
		logg.Info(ctx, "running cron jobs once")
		return service.RunOnce(ctx)
	}
	if err := metrics.Serve(ctx, cfg.Service.MetricsPort, promRegistry, logg); err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

type database interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

func buildJobs(cfg *config.Config, logg *logger.Logger, store database, reg prometheus.Registerer) (*cron.Registry, error) {
	gdb := store.DB()
	events := outbox.NewRepository(gdb)
	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Profiles:          providers.NewRepository(gdb),
		BillingRepo:       billing.NewRepository(gdb),
		Leads:             leads.NewRepository(gdb),
		Outbox:            outbox.NewService(events, logg),
		TransactionRunner: store,
		Metrics:           metrics.NewBookingMetrics(reg),
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("subscription service: %w", err)
	}

	resetJob, err := cron.NewBookingCountResetJob(logg, subscriptionService)
	if err != nil {
		return nil, err
	}
	periodEndJob, err := cron.NewSubscriptionPeriodEndJob(cron.PeriodEndJobParams{
		Logger:  logg,
		Service: subscriptionService,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           store,
		Events:       events,
		DeadLetters:  outbox.NewDLQRepository(gdb),
		Retention:    cfg.Outbox.Retention,
		DLQRetention: cfg.Outbox.DLQRetention,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(resetJob, periodEndJob, retentionJob)
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}

func closeLogged(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
