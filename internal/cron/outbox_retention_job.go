package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterPruner interface {
	DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configures the outbox cleanup. Zero retentions
// fall back to 30 days for delivered events and 90 days for dead letters.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Events       publishedPruner
	DeadLetters  deadLetterPruner
	Retention    time.Duration
	DLQRetention time.Duration
	Clock        func() time.Time
}

type outboxRetentionJob struct {
	logg   *logger.Logger
	db     txRunner
	events publishedPruner
	dlq    deadLetterPruner
	keep   time.Duration
	keepDL time.Duration
	now    func() time.Time
}

// NewOutboxRetentionJob prunes delivered outbox rows and stale dead letters.
// Undelivered rows are never touched.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("db runner required")
	case p.Events == nil:
		return nil, errors.New("outbox repository required")
	case p.DeadLetters == nil:
		return nil, errors.New("dead-letter repository required")
	}
	job := &outboxRetentionJob{
		logg:   p.Logger,
		db:     p.DB,
		events: p.Events,
		dlq:    p.DeadLetters,
		keep:   orDefault(p.Retention, defaultOutboxRetention),
		keepDL: orDefault(p.DLQRetention, defaultDLQRetention),
		now:    p.Clock,
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	eventCutoff, dlqCutoff := now.Add(-j.keep), now.Add(-j.keepDL)

	var published, deadLetters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if published, err = j.events.DeletePublishedBefore(ctx, tx, eventCutoff); err != nil {
			return fmt.Errorf("published events: %w", err)
		}
		if deadLetters, err = j.dlq.DeleteBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":         eventCutoff,
		"dlq_cutoff":           dlqCutoff,
		"published_deleted":    published,
		"dead_letters_deleted": deadLetters,
	}), "outbox retention cleanup complete")
	return nil
}
