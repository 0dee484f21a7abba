package providers

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType string

const (
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorCancelled ErrorType = "cancelled"
	ErrorParse     ErrorType = "parse"
	ErrorPermanent ErrorType = "permanent"
)

// TransportError is a failure before any HTTP status was received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("api request failed with status %d: %s", e.Status, e.Body)
}

type CancellationError struct {
	Err error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("request canceled: %v", e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// ParseError reports backend output that does not match the stage schema.
// Text holds the offending payload.
type ParseError struct {
	Stage string
	Text  string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse %s content: %v: %s", e.Stage, e.Err, e.Text)
	}
	return fmt.Sprintf("failed to parse %s content: %s", e.Stage, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

var retryableStatusMarkers = []string{"status 429", "status 500", "status 502", "status 503", "status 504"}

var retryableTransportMarkers = []string{"failed to send request", "timeout", "timed out", "connection reset", "temporarily unavailable"}

// IsRetryable decides from the error text alone. Cancellation wins over every
// retryable pattern.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "context canceled") || strings.Contains(msg, "status 499") {
		return false
	}
	for _, m := range retryableStatusMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	for _, m := range retryableTransportMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return ErrorParse
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "context canceled"), strings.Contains(e, "status 499"):
		return ErrorCancelled
	case strings.Contains(e, "status 429"):
		return ErrorRate
	case IsRetryable(err):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}
