package transport

import "fmt"

// Error is a typed transport failure: network error, timeout, or non-2xx
// HTTP status. StatusCode is zero when no HTTP response was received.
type Error struct {
	Service    string
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying: transport-level
// errors and 5xx responses are, 4xx responses are not. The client's retry
// policy applies the same classification.
func (e *Error) Retryable() bool {
	return retryableStatus(e.StatusCode)
}

// retryableStatus is the shared retry classification. Status zero means no
// HTTP response was received.
func retryableStatus(code int) bool {
	return code == 0 || code >= 500
}
