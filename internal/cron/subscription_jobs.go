package cron

import (
	"context"
	"fmt"

	"github.com/servicelink/servicelink-backend/pkg/logger"
)

const (
	defaultPeriodEndBatch      = 100
	defaultPeriodEndMaxBatches = 20
)

type usageResetter interface {
	ResetExpiredWindows(ctx context.Context) (int64, error)
}

// NewBookingCountResetJob zeroes monthly booking counters whose window has passed.
func NewBookingCountResetJob(logg *logger.Logger, resetter usageResetter) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if resetter == nil {
		return nil, fmt.Errorf("usage resetter required")
	}
	return NewJobFunc("booking-count-reset", func(ctx context.Context) error {
		reset, err := resetter.ResetExpiredWindows(ctx)
		if err != nil {
			return fmt.Errorf("reset usage windows: %w", err)
		}
		logg.Info(logg.WithField(ctx, "profiles_reset", reset), "booking counters reset")
		return nil
	}), nil
}

type periodEnder interface {
	ApplyPeriodEnd(ctx context.Context, limit int) (int, error)
}

// PeriodEndJobParams configures the subscription period-end job.
type PeriodEndJobParams struct {
	Logger     *logger.Logger
	Service    periodEnder
	BatchSize  int
	MaxBatches int
}

// NewSubscriptionPeriodEndJob downgrades plans whose cancellation took effect.
func NewSubscriptionPeriodEndJob(params PeriodEndJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPeriodEndBatch
	}
	maxBatches := params.MaxBatches
	if maxBatches <= 0 {
		maxBatches = defaultPeriodEndMaxBatches
	}
	return &periodEndJob{
		logg:       params.Logger,
		svc:        params.Service,
		batch:      batch,
		maxBatches: maxBatches,
	}, nil
}

type periodEndJob struct {
	logg       *logger.Logger
	svc        periodEnder
	batch      int
	maxBatches int
}

func (j *periodEndJob) Name() string { return "subscription-period-end" }

func (j *periodEndJob) Run(ctx context.Context) error {
	total := 0
	for i := 0; i < j.maxBatches; i++ {
		applied, err := j.svc.ApplyPeriodEnd(ctx, j.batch)
		total += applied
		if err != nil {
			return fmt.Errorf("apply period end after %d downgrades: %w", total, err)
		}
		if applied < j.batch {
			break
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "downgraded", total), "subscription period end processed")
	return nil
}
