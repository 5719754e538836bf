// Package idempotency remembers which outbox events a Pub/Sub consumer has
// already handled, so at-least-once delivery does not double apply them.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTTL outlives Pub/Sub's seven day redelivery window.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultLease bounds how long a crashed handler blocks redelivery.
	DefaultLease = 5 * time.Minute

	stateProcessing = "processing"
	stateDone       = "done"
)

type store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager keeps one key per consumer and event. A claim starts as a short
// lease and becomes a long lived marker on Complete; a handler that dies
// between the two leaves only the lease behind.
type Manager struct {
	store store
	done  time.Duration
	lease time.Duration
}

// NewManager keeps completed markers for ttl; zero means DefaultTTL.
func NewManager(s store, ttl time.Duration) (*Manager, error) {
	if s == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: s, done: ttl, lease: min(DefaultLease, ttl)}, nil
}

// Claim takes the lease for eventID. It reports true when the event is
// already leased or done, in which case the delivery should be acked.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	won, err := m.store.SetNX(ctx, key, stateProcessing, m.lease)
	if err != nil {
		return false, err
	}
	return !won, nil
}

// Complete turns the lease into a marker that lasts the full ttl.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, stateDone, m.done)
}

// Release drops the lease so a redelivery can retry the event.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("consumed:"+consumer, eventID.String()), nil
}
