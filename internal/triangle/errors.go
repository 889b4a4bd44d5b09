// internal/triangle/errors.go
package triangle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotFound indicates the upstream no longer knows the requested product
// or SKU. This is a normal result for discontinued items, not a failure.
var ErrNotFound = errors.New("upstream resource not found")

// UnavailableError indicates that retries against the upstream were
// exhausted for one operation. Callers skip the affected page or item and
// continue the run.
type UnavailableError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("upstream unavailable: %s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// statusError carries a non-2xx response status through the retry loop.
type statusError struct {
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError ||
			se.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func isBadRequest(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.StatusCode == http.StatusBadRequest
}

func errorTypeLabel(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return "rate_limited"
		case se.StatusCode == http.StatusNotFound:
			return "not_found"
		case se.StatusCode == http.StatusBadRequest:
			return "bad_request"
		case se.StatusCode >= http.StatusInternalServerError:
			return "server_error"
		}
	}
	return "other"
}
