package output

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/solvik/fetchq/jobs"
)

// Producer materializes a result payload. It is invoked inline for small
// results and inside a background job for large ones, so it must honor
// ctx in both cases.
type Producer func(ctx context.Context) (json.RawMessage, error)

// RouteRequest describes one result to place.
type RouteRequest struct {
	// Op names the operation producing the result; it becomes the
	// result subdirectory and part of the job metadata.
	Op string

	// Metadata is attached to the job record when the async path is
	// taken.
	Metadata map[string]string

	// Producer generates the payload.
	Producer Producer

	// EstimatedTokens is the caller's size estimate. Values <= 0 mean
	// the size is unknown.
	EstimatedTokens int
}

// RouteResult is either an inline payload or a job reference, never both.
type RouteResult struct {
	Inline json.RawMessage `json:"inline,omitempty"`
	JobID  string          `json:"job_id,omitempty"`
}

// Async reports whether the result went to the background path.
func (r *RouteResult) Async() bool {
	return r.JobID != ""
}

// Router sends small results inline and large or unknown-size results
// through a background job whose output lands in a result file.
type Router struct {
	writer      *Writer
	svc         *jobs.Service
	inlineLimit int
	log         *zap.SugaredLogger
}

// NewRouter creates a router that returns results inline up to
// inlineLimit estimated tokens.
func NewRouter(writer *Writer, svc *jobs.Service, inlineLimit int, log *zap.SugaredLogger) *Router {
	return &Router{writer: writer, svc: svc, inlineLimit: inlineLimit, log: log}
}

// Route places one result. An estimate at or under the inline limit runs
// the producer synchronously and returns the payload. Anything over the
// limit, and any unknown estimate, creates a job: the producer runs in
// the background, its payload is written to a result file, and the file
// path becomes the job's result reference.
func (rt *Router) Route(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	if req.EstimatedTokens > 0 && req.EstimatedTokens <= rt.inlineLimit {
		payload, err := req.Producer(ctx)
		if err != nil {
			return nil, err
		}
		rt.log.Debugw("result returned inline",
			"op", req.Op, "estimated_tokens", req.EstimatedTokens)
		return &RouteResult{Inline: payload}, nil
	}

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["op"] = req.Op

	op := req.Op
	producer := req.Producer
	job, err := rt.svc.SubmitJob(metadata, func(jobCtx context.Context) (string, error) {
		payload, err := producer(jobCtx)
		if err != nil {
			return "", err
		}
		return rt.writer.WriteJSON(op, jobs.JobIDFromContext(jobCtx), payload)
	})
	if err != nil {
		return nil, err
	}

	rt.log.Infow("result routed to background job",
		"op", req.Op, "job_id", job.ID, "estimated_tokens", req.EstimatedTokens)
	return &RouteResult{JobID: job.ID}, nil
}
