package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/servicelink/servicelink-backend/pkg/db"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

// consumer is one Pub/Sub subscription loop. Run blocks until ctx ends.
type consumer interface {
	Name() string
	Run(ctx context.Context) error
}

// Supervisor checks the worker's dependencies once and then runs every
// consumer side by side. The first consumer to fail stops the others.
type Supervisor struct {
	logg      *logger.Logger
	deps      map[string]db.Pinger
	consumers []consumer
}

func NewSupervisor(logg *logger.Logger, deps map[string]db.Pinger, consumers ...consumer) (*Supervisor, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if len(consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for name, dep := range deps {
		if dep == nil {
			return nil, fmt.Errorf("%s client is required", name)
		}
	}
	return &Supervisor{logg: logg, deps: deps, consumers: consumers}, nil
}

func (s *Supervisor) ready(ctx context.Context) error {
	names := make([]string, 0, len(s.deps))
	for name := range s.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.deps[name].Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", name), "worker dependency not ready", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	return nil
}

// Run returns nil when ctx is canceled and the consumers drained.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		group.Go(func() error {
			runCtx := s.logg.WithField(groupCtx, "consumer", c.Name())
			s.logg.Info(runCtx, "consumer started")
			err := c.Run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(runCtx, "consumer stopped unexpectedly", err)
				return fmt.Errorf("consumer %s: %w", c.Name(), err)
			}
			s.logg.Info(runCtx, "consumer stopped")
			return nil
		})
	}
	return group.Wait()
}
