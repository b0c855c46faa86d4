package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/solvik/fetchq/errors"
)

// Upstream failures fall into exactly two classes. Transient errors are
// retried by the client up to the configured limit and surface only after
// exhaustion; permanent errors surface immediately.
var (
	ErrTransient = errors.New("transient upstream error")
	ErrPermanent = errors.New("permanent upstream error")
)

// maxErrorBody bounds how much of an error response body is kept for context.
const maxErrorBody = 512

// StatusError describes a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
	URL        string
	Attempts   int
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("upstream returned %d for %s", e.StatusCode, e.URL)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// retryableStatus reports whether an HTTP status is worth retrying.
// 429 and the common 5xx gateway/overload statuses are transient;
// every other non-2xx status is permanent.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// FromResponse converts a non-2xx response into a classified StatusError.
// It consumes up to maxErrorBody bytes of the body for context.
func FromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		URL:        resp.Request.URL.Redacted(),
		Attempts:   1,
	}

	if retryableStatus(resp.StatusCode) {
		return errors.Mark(statusErr, ErrTransient)
	}
	return errors.Mark(statusErr, ErrPermanent)
}

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	return err != nil && errors.Is(err, ErrTransient)
}

// IsPermanent reports whether err is a non-retryable upstream failure.
func IsPermanent(err error) bool {
	return err != nil && errors.Is(err, ErrPermanent)
}
