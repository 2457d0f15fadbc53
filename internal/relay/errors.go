package relay

import (
	"fmt"
)

// BadRequestError reports an invalid GenerationRequest.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

// UpstreamError reports that the upstream could not be reached or answered
// with a non-2xx status. Status is 0 when no response was received.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream unreachable: %v", e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Details is the diagnostic text surfaced to HTTP callers.
func (e *UpstreamError) Details() string {
	if e.Body != "" || e.Err == nil {
		return e.Body
	}
	return e.Err.Error()
}
