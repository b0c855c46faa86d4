package jobs

import (
	"context"
	"time"
)

// Service ties the store and runner together behind the operations that
// calling tools actually need: submit work, look jobs up, cancel them.
type Service struct {
	store  *Store
	runner *Runner
}

// NewService wraps a store and runner.
func NewService(store *Store, runner *Runner) *Service {
	return &Service{store: store, runner: runner}
}

// Store exposes the underlying store for components that only read.
func (s *Service) Store() *Store {
	return s.store
}

// SubmitJob creates a job record and schedules its work. The returned
// job is in pending state; callers poll GetJob (or use WaitForJob in
// tests) to observe progress.
func (s *Service) SubmitJob(metadata map[string]string, work Work) (*Job, error) {
	job, err := s.store.Create(metadata)
	if err != nil {
		return nil, err
	}

	if err := s.runner.Submit(job.ID, work); err != nil {
		// The record exists but will never run; close it out so it
		// does not sit pending forever.
		s.store.MarkCancelled(job.ID, "runner unavailable")
		return nil, err
	}

	return job, nil
}

// GetJob returns the current record for a job.
func (s *Service) GetJob(id string) (*Job, error) {
	return s.store.Get(id)
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Service) ListJobs(filter Filter) ([]*Job, error) {
	return s.store.List(filter)
}

// CancelJob stops a pending or running job.
func (s *Service) CancelJob(id string, reason string) error {
	return s.runner.Cancel(id, reason)
}

// WaitForJob blocks until the job's work has finished or ctx expires.
func (s *Service) WaitForJob(ctx context.Context, id string) error {
	return s.runner.WaitForJob(ctx, id)
}

// Cleanup removes terminal jobs older than retention.
func (s *Service) Cleanup(retention time.Duration) (int, error) {
	return s.store.Cleanup(retention)
}

// Shutdown stops the runner.
func (s *Service) Shutdown(wait bool) {
	s.runner.Shutdown(wait)
}
