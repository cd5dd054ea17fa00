package table

import "errors"

var (
	// ErrConfirmTimeout is returned by Subscribe when no confirmation
	// arrives from the provider before the deadline.
	ErrConfirmTimeout = errors.New("table: confirm timed out")
	// ErrUnknownConnection is returned by Unsubscribe/Suspend/Activate
	// when no local record matches the given provider and instance id.
	ErrUnknownConnection = errors.New("table: no matching service connection")
)
