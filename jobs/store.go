package jobs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solvik/fetchq/errors"
)

// Store persists jobs as one JSON record per job under a root directory.
// Every write is staged to a temporary file and promoted with an atomic
// rename, so readers always see either the previous complete record or
// the new complete record, never a partial one.
//
// The store is the sole owner of job records. All mutation goes through
// Update, which serializes concurrent writers and enforces the state
// machine against the durable record.
type Store struct {
	dir string
	mu  sync.Mutex // serializes check-then-write across all writers
	log *zap.SugaredLogger
}

// NewStore creates a job store rooted at dir, creating it if needed.
func NewStore(dir string, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create jobs directory %s", dir)
	}
	return &Store{dir: dir, log: log}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) jobPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create allocates a new job with the given metadata, persists it in
// pending state, and returns it.
func (s *Store) Create(metadata map[string]string) (*Job, error) {
	job := NewJob(metadata)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(job); err != nil {
		return nil, errors.Wrapf(err, "failed to create job %s", job.ID)
	}

	s.log.Infow("job created", "job_id", job.ID, "metadata", metadata)
	return job, nil
}

// Get returns the job with the given id, or ErrNotFound.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

// Update applies fn to the current durable record of the job and persists
// the result. fn receives a copy loaded from disk; status changes inside
// fn are validated against the state machine. A job already in a terminal
// state rejects every status change with ErrInvalidTransition and the
// stored record is left untouched.
func (s *Store) Update(id string, fn func(*Job) error) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.read(id)
	if err != nil {
		return nil, err
	}

	before := job.Status
	if err := fn(job); err != nil {
		return nil, err
	}

	if job.Status != before && !ValidTransition(before, job.Status) {
		return nil, errors.Wrapf(errors.ErrInvalidTransition,
			"job %s: %s -> %s", id, before, job.Status)
	}

	if err := s.write(job); err != nil {
		return nil, errors.Wrapf(err, "failed to update job %s", id)
	}

	return job, nil
}

// MarkRunning transitions a pending job to running and stamps started_at.
func (s *Store) MarkRunning(id string) (*Job, error) {
	return s.Update(id, func(j *Job) error {
		j.start()
		return nil
	})
}

// MarkCompleted transitions a running job to completed with its result
// reference.
func (s *Store) MarkCompleted(id string, resultRef string) (*Job, error) {
	return s.Update(id, func(j *Job) error {
		j.complete(resultRef)
		return nil
	})
}

// MarkFailed transitions a running job to failed with an error message.
func (s *Store) MarkFailed(id string, msg string) (*Job, error) {
	return s.Update(id, func(j *Job) error {
		j.fail(msg)
		return nil
	})
}

// MarkCancelled transitions a pending or running job to cancelled.
func (s *Store) MarkCancelled(id string, reason string) (*Job, error) {
	return s.Update(id, func(j *Job) error {
		j.cancel(reason)
		return nil
	})
}

// Filter narrows List results.
type Filter struct {
	Status *Status // nil = all statuses
	Limit  int     // 0 = no limit
}

// List returns jobs matching the filter, sorted by creation time, newest
// first. Records that fail to decode are skipped with a warning so one
// corrupt file cannot hide every other job.
func (s *Store) List(filter Filter) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read jobs directory %s", s.dir)
	}

	var jobs []*Job
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		job, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.log.Warnw("skipping unreadable job record", "file", name, "error", err)
			continue
		}

		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})

	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}

	return jobs, nil
}

// Delete removes a job record. Returns ErrNotFound if it does not exist.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.jobPath(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("job %s", id)
		}
		return errors.Wrapf(err, "failed to delete job %s", id)
	}

	s.log.Infow("job deleted", "job_id", id)
	return nil
}

// Cleanup removes terminal jobs whose completion is older than retention.
// Non-terminal jobs are never removed, regardless of age. Returns the
// number of jobs deleted.
func (s *Store) Cleanup(retention time.Duration) (int, error) {
	jobs, err := s.List(Filter{})
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-retention)
	deleted := 0

	for _, job := range jobs {
		if !job.IsTerminal() || job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		if err := s.Delete(job.ID); err != nil {
			s.log.Warnw("cleanup failed to delete job", "job_id", job.ID, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Infow("cleaned up old jobs", "deleted", deleted, "retention", retention)
	}

	return deleted, nil
}

// read loads a job record from disk. Must be called with lock held.
func (s *Store) read(id string) (*Job, error) {
	data, err := os.ReadFile(s.jobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("job %s", id)
		}
		return nil, errors.Wrapf(err, "failed to read job %s", id)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.Wrapf(err, "failed to decode job record %s", id)
	}

	return &job, nil
}

// write stages the record to a temporary file and atomically promotes it.
// Must be called with lock held.
func (s *Store) write(job *Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode job record")
	}

	final := s.jobPath(job.ID)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to stage job record")
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to promote job record")
	}

	return nil
}
