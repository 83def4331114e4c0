package llm

import "fmt"

// BackendError reports a failed generation call: transport failure, non-200
// status, or an unparseable response. Callers use it to decide whether to
// degrade to the deterministic fallback instead of surfacing the failure.
type BackendError struct {
	Backend    string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface for BackendError.
func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend failed with status %d: %s", e.Backend, e.StatusCode, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s backend unavailable: %s", e.Backend, e.Message)
	}
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying transport error, if any.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackendUnavailable checks if an error is a *BackendError.
func IsBackendUnavailable(err error) bool {
	_, ok := err.(*BackendError)
	return ok
}
