package smartlock

import "errors"

// Domain errors for the smart-lock bridge.
var (
	// ErrUnknownLock is returned for a device ID the bridge does not manage.
	ErrUnknownLock = errors.New("smartlock: unknown lock")

	// ErrInvalidCommand is returned for a command other than lock, unlock
	// or refresh.
	ErrInvalidCommand = errors.New("smartlock: invalid command")

	// ErrDuplicateLock is returned when the same device ID is registered twice.
	ErrDuplicateLock = errors.New("smartlock: lock already registered")

	// ErrStopped is returned for commands issued after Stop.
	ErrStopped = errors.New("smartlock: bridge stopped")
)
