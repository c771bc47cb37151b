package assistant

import (
	"errors"
	"fmt"
)

// RemoteError is returned for any non-success response from the remote
// assistant API. It carries the status code and body for diagnostics.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("assistant: %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// ErrPollTimeout is returned when a run never reaches a terminal or
// actionable state within the poller's wall-clock ceiling.
var ErrPollTimeout = errors.New("assistant: run did not reach required_action or completed state in time")

// ErrRunRestartsExhausted is returned when a run keeps completing without
// ever asking for a tool action and the restart budget runs out.
var ErrRunRestartsExhausted = errors.New("assistant: run restart budget exhausted without a required action")
