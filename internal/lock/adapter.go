package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	Handle            Handle
	Service           Service
	LockID            string
	Optimistic        bool
	TrustCachedLocked bool
}

// Adapter presents one vendor lock as a host device.
//
// The state starts unknown and only changes after a successful command or
// refresh. Adapter is not safe for concurrent use.
type Adapter struct {
	handle            Handle
	service           Service
	name              string
	lockID            string
	optimistic        bool
	trustCachedLocked bool
	state             State
}

// NewAdapter creates an Adapter around an acquired handle. The name is read
// from the handle once.
func NewAdapter(opts AdapterOptions) *Adapter {
	return &Adapter{
		handle:            opts.Handle,
		service:           opts.Service,
		name:              opts.Handle.Name(),
		lockID:            opts.LockID,
		optimistic:        opts.Optimistic,
		trustCachedLocked: opts.TrustCachedLocked,
	}
}

// Name returns the lock's display name.
func (a *Adapter) Name() string {
	return a.name
}

// LockID returns the vendor lock identifier.
func (a *Adapter) LockID() string {
	return a.lockID
}

// State returns the last known bolt state.
func (a *Adapter) State() State {
	return a.state
}

// IsLocked reports whether the last known state is locked.
func (a *Adapter) IsLocked() bool {
	return a.state == StateLocked
}

// Lock engages the bolt.
func (a *Adapter) Lock(ctx context.Context) error {
	return a.command(ctx, "lock", a.handle.Lock, StateLocked)
}

// Unlock retracts the bolt.
func (a *Adapter) Unlock(ctx context.Context) error {
	return a.command(ctx, "unlock", a.handle.Unlock, StateUnlocked)
}

// Update refreshes the state from the vendor.
//
// While TrustCachedLocked is set a cached locked state is kept without
// contacting the vendor, so a lock opened by hand stays locked here until
// the next unlock command.
func (a *Adapter) Update(ctx context.Context) (err error) {
	if a.trustCachedLocked && a.state == StateLocked {
		return nil
	}

	session, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer a.release(session, &err)

	state, err := a.queryState(ctx)
	if err != nil {
		return err
	}
	a.state = state
	return nil
}

// command runs fn inside a session and records the resulting state.
func (a *Adapter) command(ctx context.Context, name string, fn func(context.Context) error, commanded State) (err error) {
	session, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer a.release(session, &err)

	if err := fn(ctx); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, name, a.lockID, err)
	}

	if a.optimistic {
		a.state = commanded
		return nil
	}

	state, err := a.queryState(ctx)
	if err != nil {
		return err
	}
	a.state = state
	return nil
}

func (a *Adapter) openSession(ctx context.Context) (Session, error) {
	session, err := a.service.OpenSession(ctx, a.handle)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSessionFailed, a.lockID, err)
	}
	return session, nil
}

// release closes session and reports a close failure through errp unless
// an earlier error is already being returned.
func (a *Adapter) release(session Session, errp *error) {
	closeErr := session.Close()
	if closeErr == nil {
		return
	}
	closeErr = fmt.Errorf("%w %s: %w", ErrSessionClose, a.lockID, closeErr)
	if *errp == nil {
		*errp = closeErr
		return
	}
	*errp = errors.Join(*errp, closeErr)
}

func (a *Adapter) queryState(ctx context.Context) (State, error) {
	bolt, err := a.handle.BoltState(ctx)
	if err != nil {
		return StateUnknown, fmt.Errorf("%w: bolt state %s: %w", ErrCommandFailed, a.lockID, err)
	}
	return State(strings.ToLower(bolt)), nil
}
