package cron

import (
	"context"
	"errors"
	"fmt"
)

// Job is one unit of scheduled maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a plain function into a Job.
type JobFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func NewJobFunc(name string, fn func(ctx context.Context) error) *JobFunc {
	return &JobFunc{name: name, fn: fn}
}

func (j *JobFunc) Name() string { return j.name }

func (j *JobFunc) Run(ctx context.Context) error {
	if j.fn == nil {
		return nil
	}
	return j.fn(ctx)
}

// Registry holds uniquely named jobs in the order they run.
type Registry struct {
	jobs   []Job
	byName map[string]Job
}

// NewRegistry registers jobs in order, skipping nils.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return errors.New("job required")
	}
	name := job.Name()
	if name == "" {
		return errors.New("job name required")
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}
	if r.byName == nil {
		r.byName = make(map[string]Job)
	}
	r.byName[name] = job
	r.jobs = append(r.jobs, job)
	return nil
}

// Select returns a registry holding only the named jobs, in registration
// order. No names selects everything.
func (r *Registry) Select(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return NewRegistry(r.jobs...)
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("unknown job %q (have %v)", name, r.Names())
		}
		want[name] = true
	}
	picked := &Registry{}
	for _, job := range r.jobs {
		if want[job.Name()] {
			if err := picked.Register(job); err != nil {
				return nil, err
			}
		}
	}
	return picked, nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
