package lock

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Default values applied by Config.WithDefaults.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// State is the last known bolt state of a lock.
//
// Values reported by the vendor are stored lowercased, so any string the
// device returns (e.g. "jammed") is a valid State.
type State string

// Well-known lock states.
const (
	StateUnknown  State = ""
	StateLocked   State = "locked"
	StateUnlocked State = "unlocked"
)

// String returns the state, or "unknown" for the zero value.
func (s State) String() string {
	if s == StateUnknown {
		return "unknown"
	}
	return string(s)
}

// Handle is a resolved lock on the vendor service.
type Handle interface {
	// Name returns the display name the vendor reports for the lock.
	Name() string

	// Lock engages the bolt. Must be called within an open Session.
	Lock(ctx context.Context) error

	// Unlock retracts the bolt. Must be called within an open Session.
	Unlock(ctx context.Context) error

	// BoltState queries the current bolt state (e.g. "Locked").
	// Must be called within an open Session.
	BoltState(ctx context.Context) (string, error)
}

// Session is an authenticated vendor session scoped to a single command.
type Session interface {
	Close() error
}

// Service is the vendor lock service.
type Service interface {
	// FromLockID resolves a lock by its vendor ID using account credentials.
	FromLockID(ctx context.Context, lockID, email, password string) (Handle, error)

	// OpenSession opens a session in which commands may be issued on h.
	OpenSession(ctx context.Context, h Handle) (Session, error)
}

// Registrar receives adapters once initialisation succeeds.
type Registrar interface {
	Register(ctx context.Context, adapters []*Adapter) error
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config identifies the lock and controls how it is acquired and driven.
type Config struct {
	Email    string
	Password string
	LockID   string

	// MaxRetries is the total number of lookup attempts, including the first.
	MaxRetries int

	// RetryDelay is the fixed pause between failed lookup attempts.
	RetryDelay time.Duration

	// Optimistic records the commanded state after lock/unlock instead of
	// querying the bolt.
	Optimistic bool

	// TrustCachedLocked skips the vendor query in Update while the cached
	// state is locked. Possibly an oversight in the integration this
	// mirrors, so it is a flag rather than hard-wired.
	TrustCachedLocked bool
}

// DefaultConfig returns a Config with defaults for everything except the
// account credentials and lock ID.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        DefaultMaxRetries,
		RetryDelay:        DefaultRetryDelay,
		Optimistic:        true,
		TrustCachedLocked: true,
	}
}

// Validate checks that the config can be used to acquire a lock.
func (c Config) Validate() error {
	var errs []string
	if c.Email == "" {
		errs = append(errs, "email is required")
	}
	if c.Password == "" {
		errs = append(errs, "password is required")
	}
	if c.LockID == "" {
		errs = append(errs, "lock_id is required")
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Sprintf("max_retries must be at least 1, got %d", c.MaxRetries))
	}
	if c.RetryDelay <= 0 {
		errs = append(errs, fmt.Sprintf("retry_delay must be positive, got %s", c.RetryDelay))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// String returns a representation of the config with the password masked.
func (c Config) String() string {
	password := ""
	if c.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("Config{Email:%q, Password:%s, LockID:%q, MaxRetries:%d, RetryDelay:%s, Optimistic:%t, TrustCachedLocked:%t}",
		c.Email, password, c.LockID, c.MaxRetries, c.RetryDelay, c.Optimistic, c.TrustCachedLocked)
}
