package output

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solvik/fetchq/jobs"
)

func testRouter(t *testing.T, inlineLimit int) (*Router, *jobs.Service) {
	t.Helper()
	store, err := jobs.NewStore(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	runner := jobs.NewRunner(store, 2, time.Minute, zap.NewNop().Sugar())
	t.Cleanup(func() { runner.Shutdown(false) })
	svc := jobs.NewService(store, runner)

	writer, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	return NewRouter(writer, svc, inlineLimit, zap.NewNop().Sugar()), svc
}

func staticProducer(payload string) Producer {
	return func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(payload), nil
	}
}

func TestRouteInline(t *testing.T) {
	rt, svc := testRouter(t, 100)

	res, err := rt.Route(context.Background(), RouteRequest{
		Op:              "quote",
		Producer:        staticProducer(`{"c":178.25}`),
		EstimatedTokens: 50,
	})
	require.NoError(t, err)

	assert.False(t, res.Async())
	assert.JSONEq(t, `{"c":178.25}`, string(res.Inline))

	// The inline path must not leave a job record behind
	all, err := svc.ListJobs(jobs.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRouteInlineAtThreshold(t *testing.T) {
	rt, _ := testRouter(t, 100)

	res, err := rt.Route(context.Background(), RouteRequest{
		Op:              "quote",
		Producer:        staticProducer(`{}`),
		EstimatedTokens: 100,
	})
	require.NoError(t, err)
	assert.False(t, res.Async(), "estimate equal to the limit stays inline")
}

func TestRouteAsync(t *testing.T) {
	rt, svc := testRouter(t, 100)

	res, err := rt.Route(context.Background(), RouteRequest{
		Op:              "candles",
		Metadata:        map[string]string{"symbol": "AAPL"},
		Producer:        staticProducer(`{"s":"ok","c":[1,2,3]}`),
		EstimatedTokens: 101,
	})
	require.NoError(t, err)
	require.True(t, res.Async())
	assert.Empty(t, res.Inline)

	// The record is visible immediately, before the work finishes
	job, err := svc.GetJob(res.JobID)
	require.NoError(t, err)
	assert.Equal(t, "candles", job.Metadata["op"])
	assert.Equal(t, "AAPL", job.Metadata["symbol"])

	require.NoError(t, svc.WaitForJob(context.Background(), res.JobID))
	job, err = svc.GetJob(res.JobID)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusCompleted, job.Status)

	data, err := os.ReadFile(job.ResultRef)
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"ok","c":[1,2,3]}`, string(data))
}

func TestRouteUnknownEstimateGoesAsync(t *testing.T) {
	rt, svc := testRouter(t, 100)

	res, err := rt.Route(context.Background(), RouteRequest{
		Op:       "filings",
		Producer: staticProducer(`{}`),
	})
	require.NoError(t, err)
	assert.True(t, res.Async(), "unknown size must not risk an oversized inline payload")

	require.NoError(t, svc.WaitForJob(context.Background(), res.JobID))
}

func TestRouteInlineProducerError(t *testing.T) {
	rt, svc := testRouter(t, 100)

	boom := func(ctx context.Context) (json.RawMessage, error) {
		return nil, context.DeadlineExceeded
	}
	_, err := rt.Route(context.Background(), RouteRequest{
		Op:              "quote",
		Producer:        boom,
		EstimatedTokens: 1,
	})
	require.Error(t, err)

	all, err := svc.ListJobs(jobs.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRouteAsyncProducerErrorFailsJob(t *testing.T) {
	rt, svc := testRouter(t, 100)

	boom := func(ctx context.Context) (json.RawMessage, error) {
		return nil, assert.AnError
	}
	res, err := rt.Route(context.Background(), RouteRequest{
		Op:              "candles",
		Producer:        boom,
		EstimatedTokens: 10_000,
	})
	require.NoError(t, err)
	require.NoError(t, svc.WaitForJob(context.Background(), res.JobID))

	job, err := svc.GetJob(res.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Contains(t, job.Error, assert.AnError.Error())
}
