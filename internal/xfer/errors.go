package xfer

import "errors"

var (
	// ErrClosed is returned by Send and Run after the adapter has been closed.
	ErrClosed = errors.New("xfer: adapter closed")
	// ErrNotConnected is returned by Send when no live connection to the
	// node manager is currently established.
	ErrNotConnected = errors.New("xfer: not connected")
)
