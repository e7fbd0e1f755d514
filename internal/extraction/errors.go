package extraction

import "fmt"

// AuthError reports a missing or malformed credential, or an upstream
// rejection of it. Fatal to the current action; never retried.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// QuotaError reports that the upstream is rate-limited or temporarily
// unavailable. Retried with bounded exponential backoff.
type QuotaError struct {
	StatusCode int
	Message    string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("extraction service unavailable (%d): %s", e.StatusCode, e.Message)
}

// NetworkError reports a transport-level failure or an upstream server
// error. Retried with bounded exponential backoff.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError reports a response that does not conform to the expected
// structured schema. Retrying would not change a deterministic formatting
// issue, so it is surfaced immediately.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "invalid extraction result: " + e.Message }

// isRetryable reports whether an error kind is worth another attempt.
func isRetryable(err error) bool {
	switch err.(type) {
	case *QuotaError, *NetworkError:
		return true
	default:
		return false
	}
}
