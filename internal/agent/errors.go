package agent

import "fmt"

// TransportError indicates the agent call failed at the HTTP level: the
// request never completed, timed out, or came back with a non-success status.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("agent %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResponseShapeError indicates the agent responded with a body that does not
// match the expected reply shape. Body carries the raw payload for diagnosis.
type ResponseShapeError struct {
	Reason string
	Body   []byte
}

func (e *ResponseShapeError) Error() string {
	return fmt.Sprintf("agent response shape: %s", e.Reason)
}
