package remote

import (
	"errors"
	"fmt"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

// statusError carries a non-2xx response status.
type statusError struct {
	status int
	method string
	path   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.method, e.path, e.status)
}

// isRetryable reports whether a request error warrants another attempt:
// transport-level network errors and 5xx responses.
func isRetryable(err error) bool {
	var netErr *schema.NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return false
}

// IsNotFound reports whether the remote answered 404 for the item. 404 is
// terminal: the item will not be retried.
func IsNotFound(err error) bool {
	return errors.Is(err, schema.ErrNotFound)
}

// IsAuthError reports whether the request failed for lack of a valid
// session after the single refresh attempt.
func IsAuthError(err error) bool {
	var ae *schema.AuthError
	return errors.As(err, &ae)
}

// IsNetworkError reports whether the failure was connectivity-related.
func IsNetworkError(err error) bool {
	var ne *schema.NetworkError
	return errors.As(err, &ne)
}
