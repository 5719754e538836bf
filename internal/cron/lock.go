package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 10 * time.Minute

// ReleaseFunc gives a held lock back.
type ReleaseFunc func(ctx context.Context) error

// Lock hands out exclusive leases for one cron cycle.
type Lock interface {
	Acquire(ctx context.Context) (ReleaseFunc, bool, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, token string) (bool, error)
}

// RedisLock leases a key with SETNX. Each lease carries its own token and is
// released with an atomic compare-and-delete, so a holder whose lease expired
// never frees the lease another instance picked up.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

// NewRedisLock constructs a Redis-backed lock; ttl <= 0 uses ten minutes.
func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// Acquire returns a release func when the lease was obtained.
func (l *RedisLock) Acquire(ctx context.Context) (ReleaseFunc, bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		return l.release(ctx, token)
	}, true, nil
}

func (l *RedisLock) release(ctx context.Context, token string) error {
	if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
