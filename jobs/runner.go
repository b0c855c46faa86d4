package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/solvik/fetchq/errors"
)

// Work is the unit a job executes. It must honor ctx cancellation and
// return either a reference to the persisted result or an error. The
// result reference is opaque to the runner; callers typically use a
// result file path.
type Work func(ctx context.Context) (resultRef string, err error)

type jobIDKey struct{}

// JobIDFromContext returns the ID of the job executing this work, or ""
// outside a runner-managed context.
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}

// Runner executes jobs with bounded concurrency. Admission is a weighted
// semaphore: Submit returns immediately, and the job waits in pending
// state until a slot frees up. Each running job gets its own deadline and
// a cancel handle so it can be stopped individually.
type Runner struct {
	store      *Store
	maxWorkers int64
	timeout    time.Duration
	log        *zap.SugaredLogger

	sem *semaphore.Weighted

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool

	baseCtx   context.Context
	baseStop  context.CancelFunc
	wg        sync.WaitGroup
	jobDoneMu sync.Mutex
	jobDone   map[string]chan struct{}
}

// NewRunner creates a runner executing at most maxConcurrent jobs at a
// time, each bounded by timeout.
func NewRunner(store *Store, maxConcurrent int, timeout time.Duration, log *zap.SugaredLogger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Runner{
		store:      store,
		maxWorkers: int64(maxConcurrent),
		timeout:    timeout,
		log:        log,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		cancels:    make(map[string]context.CancelFunc),
		jobDone:    make(map[string]chan struct{}),
		baseCtx:    ctx,
		baseStop:   stop,
	}
}

// Submit schedules work for an already-created job and returns without
// waiting for a slot. The job stays pending until admitted, then runs to
// a terminal state. Returns ErrRunnerClosed after Shutdown.
func (r *Runner) Submit(jobID string, work Work) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.ErrRunnerClosed
	}
	// Add under the same lock as the closed check so Shutdown cannot
	// start waiting between the check and the Add.
	r.wg.Add(1)
	r.mu.Unlock()

	r.jobDoneMu.Lock()
	done := make(chan struct{})
	r.jobDone[jobID] = done
	r.jobDoneMu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			close(done)
			r.jobDoneMu.Lock()
			delete(r.jobDone, jobID)
			r.jobDoneMu.Unlock()
		}()
		r.execute(jobID, work)
	}()

	return nil
}

// execute waits for an admission slot, runs the work under a per-job
// deadline, and records the terminal state. All persistence failures are
// logged but never panic the worker.
func (r *Runner) execute(jobID string, work Work) {
	if err := r.sem.Acquire(r.baseCtx, 1); err != nil {
		// Runner shut down while the job was still queued
		r.markCancelled(jobID, "runner shutting down")
		return
	}
	defer r.sem.Release(1)

	// The job may have been cancelled while waiting for a slot
	job, err := r.store.Get(jobID)
	if err != nil {
		r.log.Errorw("job vanished before execution", "job_id", jobID, "error", err)
		return
	}
	if job.Status != StatusPending {
		r.log.Debugw("skipping job no longer pending", "job_id", jobID, "status", job.Status)
		return
	}

	if _, err := r.store.MarkRunning(jobID); err != nil {
		// Lost the race with a concurrent cancel; the store already
		// holds the authoritative state.
		r.log.Debugw("job not started", "job_id", jobID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.baseCtx, r.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, jobIDKey{}, jobID)

	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.cancels, jobID)
		r.mu.Unlock()
	}()

	r.log.Infow("job started", "job_id", jobID)
	start := time.Now()

	// The work runs in its own goroutine raced against the deadline, so
	// a job whose work ignores ctx is still marked terminal the moment
	// the deadline fires. The channel is buffered: a late result is
	// delivered without blocking and discarded by the store's
	// terminal-state guard.
	resCh := make(chan workResult, 1)
	go func() {
		ref, err := r.runWork(ctx, work)
		resCh <- workResult{ref: ref, err: err}
	}()

	var res workResult
	finished := false
	select {
	case res = <-resCh:
		finished = true
	case <-ctx.Done():
	}

	switch {
	case finished && res.err == nil && ctx.Err() == nil:
		if _, serr := r.store.MarkCompleted(jobID, res.ref); serr != nil {
			if errors.IsInvalidTransitionError(serr) {
				// A cancel landed between the work finishing and the
				// record update; the cancel wins.
				r.log.Debugw("discarding result of cancelled job", "job_id", jobID)
				return
			}
			r.log.Errorw("failed to record job completion", "job_id", jobID, "error", serr)
			return
		}
		r.log.Infow("job completed", "job_id", jobID, "duration", time.Since(start))

	case finished && ctx.Err() == nil:
		r.markFailed(jobID, res.err.Error())
		r.log.Warnw("job failed", "job_id", jobID, "error", res.err, "duration", time.Since(start))

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.markFailed(jobID, errors.Wrapf(errors.ErrJobTimeout,
			"exceeded %s", r.timeout).Error())
		r.log.Warnw("job timed out", "job_id", jobID, "timeout", r.timeout)

	default:
		// Either Cancel already moved the record, or the runner is
		// shutting down and the record is still running. A late success
		// or failure from the work is discarded either way.
		r.markCancelled(jobID, "cancelled")
		r.log.Infow("job cancelled mid-flight", "job_id", jobID)
	}
}

type workResult struct {
	ref string
	err error
}

// runWork invokes the work function, converting a panic into an error so
// a misbehaving job cannot take the runner down.
func (r *Runner) runWork(ctx context.Context, work Work) (resultRef string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("job panicked: %v", p)
		}
	}()
	return work(ctx)
}

func (r *Runner) markFailed(jobID, msg string) {
	if _, err := r.store.MarkFailed(jobID, msg); err != nil {
		r.log.Errorw("failed to record job failure", "job_id", jobID, "error", err)
	}
}

func (r *Runner) markCancelled(jobID, reason string) {
	if _, err := r.store.MarkCancelled(jobID, reason); err != nil && !errors.IsInvalidTransitionError(err) {
		r.log.Errorw("failed to record job cancellation", "job_id", jobID, "error", err)
	}
}

// Cancel stops a job. A pending job is moved straight to cancelled; a
// running job has its context cancelled and its record moved to
// cancelled. Terminal jobs return ErrInvalidTransition.
func (r *Runner) Cancel(jobID string, reason string) error {
	job, err := r.store.Get(jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"job %s already %s", jobID, job.Status)
	}

	if _, err := r.store.MarkCancelled(jobID, reason); err != nil {
		return err
	}

	r.mu.Lock()
	cancel, running := r.cancels[jobID]
	r.mu.Unlock()
	if running {
		cancel()
	}

	r.log.Infow("job cancel requested", "job_id", jobID, "reason", reason)
	return nil
}

// IsRunning reports whether the job currently holds an execution slot.
func (r *Runner) IsRunning(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancels[jobID]
	return ok
}

// RunningCount returns how many jobs currently hold execution slots.
func (r *Runner) RunningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// WaitForJob blocks until the runner stops awaiting the job (its record
// is terminal) or ctx is done. Note the work itself may still be
// unwinding if it ignored its deadline. Jobs never submitted to this
// runner, or already finished, return immediately.
func (r *Runner) WaitForJob(ctx context.Context, jobID string) error {
	r.jobDoneMu.Lock()
	done, ok := r.jobDone[jobID]
	r.jobDoneMu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting new jobs. With wait set it blocks until
// in-flight jobs drain; otherwise it cancels everything immediately and
// queued jobs are marked cancelled.
func (r *Runner) Shutdown(wait bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	if wait {
		r.wg.Wait()
		r.baseStop()
		return
	}

	r.baseStop()
	r.wg.Wait()
}

// String describes the runner's capacity for logs.
func (r *Runner) String() string {
	return fmt.Sprintf("runner(max=%d, timeout=%s)", r.maxWorkers, r.timeout)
}
