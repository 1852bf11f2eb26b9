package inference

import (
	"errors"
	"fmt"
)

// TransportError means the endpoint could not be reached (connection
// failure, timeout, truncated body). It is the only retried failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("inference transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError means the endpoint answered with a non-success status.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("inference endpoint returned status %d: %s", e.Status, e.Body)
}

// MalformedResponseError means a success status carried an unusable payload.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed inference response: %s: %v", e.Reason, e.Err)
	}
	return "malformed inference response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Kind returns a short label for err, used in logs and metrics.
func Kind(err error) string {
	var (
		te *TransportError
		he *HTTPError
		me *MalformedResponseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &he):
		return "http"
	case errors.As(err, &me):
		return "malformed"
	default:
		return "other"
	}
}
