package cron

import (
	"context"
	"errors"
	"testing"
)

type fakeResetter struct {
	reset int64
	err   error
	calls int
}

func (f *fakeResetter) ResetExpiredWindows(context.Context) (int64, error) {
	f.calls++
	return f.reset, f.err
}

type fakePeriodEnder struct {
	results []int
	err     error
	limits  []int
}

func (f *fakePeriodEnder) ApplyPeriodEnd(_ context.Context, limit int) (int, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next, nil
}

func TestBookingCountResetJob(t *testing.T) {
	resetter := &fakeResetter{reset: 4}
	job, err := NewBookingCountResetJob(testLogger(), resetter)
	if err != nil {
		t.Fatalf("NewBookingCountResetJob: %v", err)
	}
	if job.Name() != "booking-count-reset" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resetter.calls != 1 {
		t.Fatalf("expected one reset call, got %d", resetter.calls)
	}

	resetter.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPeriodEndJobDrainsFullBatches(t *testing.T) {
	ender := &fakePeriodEnder{results: []int{2, 2, 1}}
	job, err := NewSubscriptionPeriodEndJob(PeriodEndJobParams{
		Logger:    testLogger(),
		Service:   ender,
		BatchSize: 2,
	})
	if err != nil {
		t.Fatalf("NewSubscriptionPeriodEndJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ender.limits) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(ender.limits))
	}
	for _, limit := range ender.limits {
		if limit != 2 {
			t.Fatalf("expected batch size 2, got %d", limit)
		}
	}
}

func TestPeriodEndJobStopsAtMaxBatches(t *testing.T) {
	ender := &fakePeriodEnder{results: []int{1, 1, 1, 1}}
	job, _ := NewSubscriptionPeriodEndJob(PeriodEndJobParams{
		Logger:     testLogger(),
		Service:    ender,
		BatchSize:  1,
		MaxBatches: 2,
	})
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ender.limits) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(ender.limits))
	}
}

func TestPeriodEndJobPropagatesError(t *testing.T) {
	ender := &fakePeriodEnder{err: errors.New("boom")}
	job, _ := NewSubscriptionPeriodEndJob(PeriodEndJobParams{Logger: testLogger(), Service: ender})
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
