package broker

import (
	"errors"
	"fmt"
)

// ErrNoCredentials is returned before any network call when the key/secret
// pair is absent. Unauthenticated calls fail closed.
var ErrNoCredentials = errors.New("broker: missing API credentials")

// TransportError covers network failures, timeouts, and non-2xx responses.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("broker: %s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("broker: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimited reports whether the error is an HTTP 429 from the API.
func (e *TransportError) RateLimited() bool { return e.StatusCode == 429 }
