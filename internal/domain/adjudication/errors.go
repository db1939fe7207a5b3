package adjudication

import "errors"

var (
	// ErrNotProcessable is returned when a claim or service request is not
	// in a status the automatic pipeline accepts.
	ErrNotProcessable = errors.New("subject is not in a processable status")

	// ErrInsufficientAuthority is returned when a reviewer lacks a
	// permission the requested decision requires. No state is changed.
	ErrInsufficientAuthority = errors.New("reviewer lacks required permission")

	// ErrConcurrencyConflict is returned when the result a reviewer acted
	// on is no longer the active one.
	ErrConcurrencyConflict = errors.New("adjudication result is no longer active")

	// ErrInvalidDecision is returned for malformed review decisions, such
	// as a missing reason or an out-of-range override amount.
	ErrInvalidDecision = errors.New("invalid review decision")
)
