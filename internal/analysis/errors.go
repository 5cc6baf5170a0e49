// Package analysis defines the error kinds every stage of an analysis can
// return. Callers match them with errors.As; the HTTP layer maps each kind to
// a status code with HTTPStatus.
package analysis

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// InvalidInputError means the user supplied malformed or mismatched input.
// The user can fix it and resubmit.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidInput is a shorthand for building an InvalidInputError.
func InvalidInput(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UpstreamError is a non-success reply from an external service.
// Status is 0 when no HTTP response was received at all.
type UpstreamError struct {
	Service string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s unreachable: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.Status, e.Message)
}

// TimeoutError means an external call ran past its configured duration.
type TimeoutError struct {
	Service string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s call timed out after %s", e.Service, e.After)
}

// InconsistentUsageError means the token counts don't add up:
// Total must equal Input + Output.
type InconsistentUsageError struct {
	Input  int64
	Output int64
	Total  int64
}

func (e *InconsistentUsageError) Error() string {
	return fmt.Sprintf("inconsistent token usage: input %d + output %d != total %d", e.Input, e.Output, e.Total)
}

// ErrNotConfigured means a required external service has no endpoint or
// API key configured. It is a server-side problem, not the user's.
var ErrNotConfigured = errors.New("service not configured")

// Kind returns a stable machine-readable name for err, used in API responses
// and in the call log.
func Kind(err error) string {
	var (
		invalid  *InvalidInputError
		upstream *UpstreamError
		timeout  *TimeoutError
		usage    *InconsistentUsageError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalid):
		return "invalid_input"
	case errors.As(err, &upstream):
		return "upstream_error"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &usage):
		return "inconsistent_usage"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps an error kind to the status code returned to API clients.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case "invalid_input":
		return http.StatusBadRequest
	case "upstream_error":
		return http.StatusBadGateway
	case "timeout":
		return http.StatusGatewayTimeout
	case "not_configured":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
