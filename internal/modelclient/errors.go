package modelclient

import "fmt"

// UnavailableError is a retryable upstream failure: non-2xx status, transport
// error, or an open circuit. Excerpt is a bounded slice of the response body.
type UnavailableError struct {
	StatusCode int
	Excerpt    string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("model endpoint unavailable (status %d): %s", e.StatusCode, e.Excerpt)
}

// ValidationError means the model answered but the payload failed the
// capability's output schema. Retried at most once by the orchestrator,
// never silently coerced.
type ValidationError struct {
	Capability string
	Detail     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model output failed %s validation: %s", e.Capability, e.Detail)
}
