package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrBlocked: the identity has an active block record. Terminal for the
	// triggering action.
	ErrBlocked = errors.New("relay: user is blocked")

	// ErrNotAwaiting: inbound content arrived while the user was not in the
	// "awaiting question" state; callers ignore it silently.
	ErrNotAwaiting = errors.New("relay: user is not awaiting a question")

	// ErrInvalidContent: the content was empty after sanitation.
	ErrInvalidContent = errors.New("relay: content rejected by sanitizer")

	// ErrNotFound: the referenced state (reply session, block record) does
	// not exist. Reported, not escalated.
	ErrNotFound = errors.New("relay: not found")
)

// TransportError wraps a failed delivery. Non-fatal; isolated per recipient
// during broadcast, surfaced to the initiator otherwise.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
