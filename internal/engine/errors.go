package engine

import "errors"

var (
	// ErrReceiptTimeout is returned by SendWithReceipt when no acknowledgement
	// arrives before the deadline.
	ErrReceiptTimeout = errors.New("engine: receipt timed out")
	// ErrBandwidthExceeded is returned by Send when the destination's token
	// bucket cannot absorb the outgoing frame.
	ErrBandwidthExceeded = errors.New("engine: destination bandwidth budget exceeded")
	// ErrNoHandler is logged (not returned) when a dispatched message has no
	// registered handler; exported so tests can assert on it via logs.
	ErrNoHandler = errors.New("engine: no handler registered for command code")
	// ErrAuthorityDenied is logged (not returned) when an inbound command's
	// header priority falls below this component's authority threshold and
	// its source is not the local Node Manager.
	ErrAuthorityDenied = errors.New("engine: command sender authority denied")
)
