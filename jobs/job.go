// Package jobs provides durable background jobs: a file-backed store with
// atomic record writes, a bounded-concurrency runner with per-job timeouts
// and cooperative cancellation, and the job-facing service used by calling
// tools.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ValidTransition encodes the job state machine:
//
//	pending -> running -> {completed, failed}
//	pending -> cancelled
//	running -> cancelled
//
// There are no transitions out of a terminal state.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}

// Job is a trackable unit of asynchronous work. The store owns every Job;
// the runner only holds a transient reference and a cancellation handle
// while executing. Metadata is caller-supplied context for observability
// and is never interpreted by the runner.
type Job struct {
	ID          string            `json:"id"`
	Status      Status            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ResultRef   string            `json:"result_ref,omitempty"` // Set only when completed
	Error       string            `json:"error,omitempty"`      // Set only when failed or cancelled
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewJob creates a pending job with a fresh identifier.
func NewJob(metadata map[string]string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether the job has finished.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Duration returns elapsed execution time, or zero if the job never started.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}

// start marks the job as running. Mutators are unexported: all status
// changes go through the store so the state machine is enforced against
// the durable record, never against a stale in-memory copy.
func (j *Job) start() {
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// complete marks the job as completed with a result reference.
func (j *Job) complete(resultRef string) {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.ResultRef = resultRef
	j.Error = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// fail marks the job as failed with an error message.
func (j *Job) fail(msg string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.Error = msg
	j.ResultRef = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// cancel marks the job as cancelled with a reason.
func (j *Job) cancel(reason string) {
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.Error = reason
	j.ResultRef = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
}
