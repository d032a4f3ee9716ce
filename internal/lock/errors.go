package lock

import (
	"errors"
	"fmt"
)

// Domain errors for the lock package.
var (
	// ErrAcquisitionFailed is returned when the lock could not be resolved
	// on the vendor service after all configured attempts.
	ErrAcquisitionFailed = errors.New("lock: acquisition failed")

	// ErrCommandFailed is returned when a lock, unlock, or bolt state query
	// fails on the vendor service.
	ErrCommandFailed = errors.New("lock: command failed")

	// ErrSessionFailed is returned when a vendor session cannot be opened
	// or released.
	ErrSessionFailed = errors.New("lock: session failed")

	// ErrSessionClose is returned when a session could not be released.
	// Any command issued in the session has already run and the adapter
	// state reflects it. It matches ErrSessionFailed.
	ErrSessionClose = fmt.Errorf("%w: close", ErrSessionFailed)

	// ErrRegistrationFailed is returned when the host rejects the adapters.
	ErrRegistrationFailed = errors.New("lock: registration failed")

	// ErrInvalidConfig is returned when Config validation fails.
	ErrInvalidConfig = errors.New("lock: invalid config")
)
