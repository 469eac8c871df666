package realtime

import "errors"

var (
	// ErrNotConnected is returned by internal writes attempted while the
	// transport is down. Emit surfaces it as a logged drop, never a panic.
	ErrNotConnected = errors.New("realtime: not connected")
)
