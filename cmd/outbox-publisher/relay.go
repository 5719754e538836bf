package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/db/models"
	"github.com/servicelink/servicelink-backend/pkg/enums"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	"github.com/servicelink/servicelink-backend/pkg/metrics"
	"github.com/servicelink/servicelink-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	publishTimeout      = 15 * time.Second
	idleBackoffCeiling  = 10 * time.Second
	maxJitter           = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	ClaimBatchTx(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailureTx(tx *gorm.DB, id uuid.UUID, cause error) error
	ParkTx(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.Routed, error)
}

// topicPublisher is the slice of a Pub/Sub publisher the relay drives.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// RelayParams wires the relay's collaborators.
type RelayParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	PubSub     topicSource
	Events     eventStore
	DeadLetter deadLetterStore
	Routes     eventResolver
	Metrics    *metrics.OutboxMetrics
	// Topics overrides how publishers are built; tests swap in fakes.
	Topics func(topic string) topicPublisher
	Clock  func() time.Time
}

// Relay moves committed outbox rows onto Pub/Sub.
//
// Booking and provider rows carry the aggregate id as the ordering key, so
// consumers see a booking's lifecycle in commit order. When one of those rows
// fails, later rows for the same key wait for the next batch.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      topicSource
	events      eventStore
	deadLetter  deadLetterStore
	routes      eventResolver
	metrics     *metrics.OutboxMetrics
	topics      func(topic string) topicPublisher
	publishers  map[string]topicPublisher
	now         func() time.Time
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
	outcomeDeferred
)

type batchStats struct {
	claimed      int
	published    int
	retried      int
	deadLettered int
	deferred     int
}

func (b batchStats) fields() map[string]any {
	return map[string]any{
		"claimed":       b.claimed,
		"published":     b.published,
		"retried":       b.retried,
		"dead_lettered": b.deadLettered,
		"deferred":      b.deferred,
	}
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Events == nil:
		return nil, errors.New("outbox repository is required")
	case params.DeadLetter == nil:
		return nil, errors.New("dlq repository is required")
	case params.Routes == nil:
		return nil, errors.New("event routes are required")
	}

	r := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		events:      params.Events,
		deadLetter:  params.DeadLetter,
		routes:      params.Routes,
		metrics:     params.Metrics,
		topics:      params.Topics,
		publishers:  map[string]topicPublisher{},
		now:         params.Clock,
		batchSize:   params.Outbox.BatchSize,
		maxAttempts: params.Outbox.MaxAttempts,
		poll:        time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if r.topics == nil {
		r.topics = r.gcpTopic
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.batchSize <= 0 {
		r.batchSize = fallbackBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = fallbackMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = fallbackPoll
	}
	return r, nil
}

// Run polls until ctx is cancelled. Empty or failed batches back off.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := newBackoff(r.poll, idleBackoffCeiling)
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		stats, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			if err := sleepCtx(ctx, wait.next()); err != nil {
				return err
			}
		case stats.claimed > 0:
			wait.reset()
			r.logg.Info(r.logg.WithFields(ctx, stats.fields()), "outbox batch relayed")
			// rows held back behind a failed key are picked up on the next poll
			if stats.retried > 0 || stats.deferred > 0 {
				if err := sleepCtx(ctx, wait.base); err != nil {
					return err
				}
			}
		default:
			wait.reset()
			if err := sleepCtx(ctx, wait.base+jitter(maxJitter)); err != nil {
				return err
			}
		}
	}
}

// drain claims one batch under row locks and settles every row in it.
func (r *Relay) drain(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		rows, err := r.events.ClaimBatchTx(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		stats.claimed = len(rows)

		blocked := map[string]struct{}{}
		for _, row := range rows {
			result, err := r.settle(ctx, tx, row, blocked)
			if err != nil {
				return err
			}
			switch result {
			case outcomePublished:
				stats.published++
			case outcomeRetry:
				stats.retried++
			case outcomeDeadLetter:
				stats.deadLettered++
			case outcomeDeferred:
				stats.deferred++
			}
		}
		return nil
	})
	return stats, err
}

// settle publishes one row or decides why it cannot be published now.
// blocked collects ordering keys that already failed in this batch.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, blocked map[string]struct{}) (outcome, error) {
	routed, err := r.routes.Resolve(row)
	if err != nil {
		return outcomeDeadLetter, r.park(ctx, tx, row, deadLetterReason(err), err, "")
	}
	key, topic := routed.OrderingKey, routed.Route.Topic
	if _, held := blocked[key]; held && key != "" {
		return outcomeDeferred, nil
	}

	pubErr := r.publish(ctx, row, routed)
	if pubErr == nil {
		if err := r.events.MarkPublishedTx(tx, row.ID, r.now()); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.metrics.IncPublished(string(row.EventType))
		r.logg.Debug(r.logg.WithFields(ctx, rowFields(row, topic)), "outbox event published")
		return outcomePublished, nil
	}

	if key != "" {
		blocked[key] = struct{}{}
	}
	if _, terminal := registry.ReasonOf(pubErr); terminal {
		return outcomeDeadLetter, r.park(ctx, tx, row, deadLetterReason(pubErr), pubErr, topic)
	}
	if row.AttemptCount+1 >= r.maxAttempts {
		exhausted := fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, pubErr)
		return outcomeDeadLetter, r.park(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, exhausted, topic)
	}

	fields := rowFields(row, topic)
	fields["attempt_count"] = row.AttemptCount + 1
	fields["error"] = pubErr.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox publish failed, will retry")
	if err := r.events.RecordFailureTx(tx, row.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("record failure %s: %w", row.ID, err)
	}
	r.metrics.IncFailed(string(row.EventType))
	return outcomeRetry, nil
}

func deadLetterReason(err error) enums.OutboxDLQErrorReason {
	if reason, ok := registry.ReasonOf(err); ok {
		return reason
	}
	return enums.OutboxDLQReasonUnroutable
}

// park copies the row into the DLQ and lifts its attempt count to the ceiling.
func (r *Relay) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, topic string) error {
	fields := rowFields(row, topic)
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.deadLetter.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.events.ParkTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", row.ID, err)
	}
	r.metrics.IncDeadLettered(string(row.EventType), string(reason))
	return nil
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, routed *registry.Routed) error {
	topic, key := routed.Route.Topic, routed.OrderingKey
	pub := r.publisherFor(topic)
	if pub == nil {
		return registry.Unroutable("no publisher for topic %s", topic)
	}

	env := routed.Envelope
	msg := &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: key,
		Attributes: map[string]string{
			"event_id":       env.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"schema_version": strconv.Itoa(env.Version),
			"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.Unroutable("publisher for %s returned no result", topic)
	}
	if _, err := result.Get(publishCtx); err != nil {
		// an ordered publisher pauses the key after a failure until resumed
		if key != "" {
			pub.ResumePublish(key)
		}
		return err
	}
	return nil
}

func (r *Relay) publisherFor(topic string) topicPublisher {
	if pub, ok := r.publishers[topic]; ok {
		return pub
	}
	pub := r.topics(topic)
	if pub != nil {
		r.publishers[topic] = pub
	}
	return pub
}

func (r *Relay) gcpTopic(topic string) topicPublisher {
	p := r.pubsub.Publisher(topic)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return gcpPublisher{p}
}

func rowFields(row models.OutboxEvent, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	return fields
}

type backoff struct {
	base    time.Duration
	ceiling time.Duration
	current time.Duration
}

func newBackoff(base, ceiling time.Duration) *backoff {
	return &backoff{base: base, ceiling: ceiling, current: base}
}

// next doubles the wait up to the ceiling and returns it with jitter.
func (b *backoff) next() time.Duration {
	b.current *= 2
	if b.current > b.ceiling {
		b.current = b.ceiling
	}
	return b.current + jitter(maxJitter)
}

func (b *backoff) reset() {
	b.current = b.base
}

func jitter(window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(window)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
