package events

import "errors"

var (
	// ErrConfirmTimeout is returned by Subscribe when no ConfirmEventRequest
	// or RejectEventRequest arrives from the provider before the deadline.
	ErrConfirmTimeout = errors.New("events: confirm/reject timed out")
	// ErrUnknownSubscription is returned by Unsubscribe when no local
	// subscription matches the given provider and event id.
	ErrUnknownSubscription = errors.New("events: no matching subscription")
)
