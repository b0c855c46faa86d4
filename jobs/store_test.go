package jobs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solvik/fetchq/errors"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

func TestStoreCreateAndGet(t *testing.T) {
	s := testStore(t)

	created, err := s.Create(map[string]string{"tool": "candles", "symbol": "AAPL"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusPending, created.Status)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "AAPL", got.Metadata["symbol"])
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
}

func TestStoreGetUnknown(t *testing.T) {
	s := testStore(t)

	_, err := s.Get("no-such-job")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreLifecycle(t *testing.T) {
	s := testStore(t)

	job, err := s.Create(nil)
	require.NoError(t, err)

	running, err := s.MarkRunning(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, running.Status)
	require.NotNil(t, running.StartedAt)

	done, err := s.MarkCompleted(job.ID, "results/abc.json")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, "results/abc.json", done.ResultRef)
	require.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)
}

func TestStoreTerminalStatesImmutable(t *testing.T) {
	s := testStore(t)

	job, err := s.Create(nil)
	require.NoError(t, err)
	_, err = s.MarkRunning(job.ID)
	require.NoError(t, err)
	completed, err := s.MarkCompleted(job.ID, "results/final.json")
	require.NoError(t, err)

	cases := []struct {
		name string
		fn   func() (*Job, error)
	}{
		{"running", func() (*Job, error) { return s.MarkRunning(job.ID) }},
		{"failed", func() (*Job, error) { return s.MarkFailed(job.ID, "boom") }},
		{"cancelled", func() (*Job, error) { return s.MarkCancelled(job.ID, "user request") }},
	}

	for _, tc := range cases {
		_, err := tc.fn()
		require.Error(t, err, "completed -> %s must be rejected", tc.name)
		assert.True(t, errors.IsInvalidTransitionError(err))
	}

	// The durable record must be untouched by the rejected transitions
	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "results/final.json", got.ResultRef)
	assert.True(t, got.UpdatedAt.Equal(completed.UpdatedAt))
}

func TestStoreInvalidTransitions(t *testing.T) {
	s := testStore(t)

	pending, err := s.Create(nil)
	require.NoError(t, err)

	// pending cannot jump straight to completed or failed
	_, err = s.MarkCompleted(pending.ID, "ref")
	assert.True(t, errors.IsInvalidTransitionError(err))
	_, err = s.MarkFailed(pending.ID, "oops")
	assert.True(t, errors.IsInvalidTransitionError(err))

	// pending -> cancelled is allowed
	cancelled, err := s.MarkCancelled(pending.ID, "superseded")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "superseded", cancelled.Error)
}

func TestStoreListFilterAndOrder(t *testing.T) {
	s := testStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := s.Create(nil)
		require.NoError(t, err)
		ids = append(ids, job.ID)
		time.Sleep(2 * time.Millisecond) // distinct created_at
	}
	_, err := s.MarkRunning(ids[1])
	require.NoError(t, err)

	all, err := s.List(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// newest first
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	running := StatusRunning
	filtered, err := s.List(Filter{Status: &running})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, ids[1], filtered[0].ID)

	limited, err := s.List(Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStoreListSkipsCorruptRecords(t *testing.T) {
	s := testStore(t)

	good, err := s.Create(nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "corrupt.json"), []byte("{truncated"), 0o644))

	jobs, err := s.List(Filter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, good.ID, jobs[0].ID)
}

func TestStoreWritesAreAtomic(t *testing.T) {
	s := testStore(t)

	job, err := s.Create(nil)
	require.NoError(t, err)

	// A stale staging file from a crashed writer must not shadow the record
	tmp := filepath.Join(s.Dir(), job.ID+".json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("{partial"), 0o644))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	// The published record is complete, valid JSON on disk
	data, err := os.ReadFile(filepath.Join(s.Dir(), job.ID+".json"))
	require.NoError(t, err)
	var onDisk Job
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, job.ID, onDisk.ID)
}

func TestStoreCleanup(t *testing.T) {
	s := testStore(t)

	oldDone, err := s.Create(nil)
	require.NoError(t, err)
	_, err = s.MarkRunning(oldDone.ID)
	require.NoError(t, err)
	_, err = s.MarkCompleted(oldDone.ID, "ref")
	require.NoError(t, err)

	// Age the record past the retention cutoff
	_, err = s.Update(oldDone.ID, func(j *Job) error {
		past := time.Now().UTC().Add(-48 * time.Hour)
		j.CompletedAt = &past
		return nil
	})
	require.NoError(t, err)

	stillRunning, err := s.Create(nil)
	require.NoError(t, err)
	_, err = s.MarkRunning(stillRunning.ID)
	require.NoError(t, err)

	freshDone, err := s.Create(nil)
	require.NoError(t, err)
	_, err = s.MarkRunning(freshDone.ID)
	require.NoError(t, err)
	_, err = s.MarkFailed(freshDone.ID, "boom")
	require.NoError(t, err)

	deleted, err := s.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = s.Get(oldDone.ID)
	assert.True(t, errors.IsNotFoundError(err))

	// Non-terminal and recent terminal jobs survive
	_, err = s.Get(stillRunning.ID)
	assert.NoError(t, err)
	_, err = s.Get(freshDone.ID)
	assert.NoError(t, err)
}

func TestStoreUpdateErrorFromFn(t *testing.T) {
	s := testStore(t)

	job, err := s.Create(nil)
	require.NoError(t, err)

	sentinel := errors.New("caller rejected")
	_, err = s.Update(job.ID, func(j *Job) error {
		j.Metadata = map[string]string{"should": "not persist"}
		return sentinel
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Metadata)
}
