package registry

import "errors"

// ErrUnknownCode is returned by Lookup/NewMessage when no descriptor is
// registered for a command code.
var ErrUnknownCode = errors.New("registry: unknown command code")
