package wire

import "errors"

// Sentinel errors returned by the wire codec. Decode failures are local:
// malformed bytes are dropped by the caller, never surfaced to a peer.
var (
	// ErrInvalidHeader indicates a header failed one of the field validity rules.
	ErrInvalidHeader = errors.New("wire: invalid header")
	// ErrShortRead indicates fewer bytes were available than the header or payload requires.
	ErrShortRead = errors.New("wire: short read")
	// ErrUnsupportedVersion indicates a header advertised a protocol version below 3.3.
	ErrUnsupportedVersion = errors.New("wire: unsupported protocol version")
	// ErrPayloadTooLarge indicates a single-packet payload exceeds MaxSingleDataSize.
	ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum single-packet size")
)
