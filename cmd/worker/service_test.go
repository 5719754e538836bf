package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelink/servicelink-backend/pkg/db"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeConsumer struct {
	name    string
	err     error
	started atomic.Bool
}

func (f *fakeConsumer) Name() string { return f.name }

func (f *fakeConsumer) Run(ctx context.Context) error {
	f.started.Store(true)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func healthy() pingFunc { return func(context.Context) error { return nil } }

func TestSupervisorStopsCleanlyOnCancel(t *testing.T) {
	a, b := &fakeConsumer{name: "a"}, &fakeConsumer{name: "b"}
	s, err := NewSupervisor(quietLogger(), map[string]db.Pinger{"database": healthy()}, a, b)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return a.started.Load() && b.started.Load() }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestSupervisorFailingConsumerStopsSiblings(t *testing.T) {
	boom := errors.New("subscription deleted")
	healthyConsumer := &fakeConsumer{name: "healthy"}
	s, err := NewSupervisor(quietLogger(), nil, healthyConsumer, &fakeConsumer{name: "broken", err: boom})
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "consumer broken")
}

func TestSupervisorRefusesToStartWithUnreadyDependency(t *testing.T) {
	c := &fakeConsumer{name: "a"}
	s, err := NewSupervisor(quietLogger(), map[string]db.Pinger{
		"database": healthy(),
		"redis":    pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}, c)
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorContains(t, err, "redis ping failed")
	assert.False(t, c.started.Load())
}

func TestNewSupervisorValidates(t *testing.T) {
	_, err := NewSupervisor(nil, nil, &fakeConsumer{name: "a"})
	assert.Error(t, err)
	_, err = NewSupervisor(quietLogger(), nil)
	assert.Error(t, err)
	_, err = NewSupervisor(quietLogger(), map[string]db.Pinger{"redis": nil}, &fakeConsumer{name: "a"})
	assert.Error(t, err)
}
