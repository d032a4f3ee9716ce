package lock

import (
	"context"
	"fmt"
	"time"
)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// InitializerOptions configures an Initializer.
type InitializerOptions struct {
	// Service resolves locks and opens sessions. Required.
	Service Service

	// Registrar receives the adapter on success. Required for Initialize.
	Registrar Registrar

	// Logger is an optional structured logger.
	Logger Logger

	// Sleep replaces the retry pause. Defaults to a context-aware timer.
	Sleep SleepFunc
}

// Initializer resolves the configured lock and registers its adapter.
type Initializer struct {
	service   Service
	registrar Registrar
	logger    Logger
	sleep     SleepFunc
}

// NewInitializer creates an Initializer.
func NewInitializer(opts InitializerOptions) *Initializer {
	i := &Initializer{
		service:   opts.Service,
		registrar: opts.Registrar,
		logger:    opts.Logger,
		sleep:     opts.Sleep,
	}
	if i.logger == nil {
		i.logger = noopLogger{}
	}
	if i.sleep == nil {
		i.sleep = sleepContext
	}
	return i
}

// Initialize acquires the lock described by cfg, wraps it in an Adapter,
// and hands it to the Registrar. Nothing is registered on failure.
func (i *Initializer) Initialize(ctx context.Context, cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	handle, err := i.Acquire(ctx, cfg)
	if err != nil {
		return nil, err
	}

	adapter := NewAdapter(AdapterOptions{
		Handle:            handle,
		Service:           i.service,
		LockID:            cfg.LockID,
		Optimistic:        cfg.Optimistic,
		TrustCachedLocked: cfg.TrustCachedLocked,
	})

	if i.registrar == nil {
		return nil, fmt.Errorf("%w: no registrar", ErrRegistrationFailed)
	}
	if err := i.registrar.Register(ctx, []*Adapter{adapter}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	i.logger.Info("lock registered", "lock_id", cfg.LockID, "name", adapter.Name())
	return adapter, nil
}

// Acquire looks the lock up on the vendor service, making up to
// cfg.MaxRetries attempts with a fixed cfg.RetryDelay pause between them.
// The last failure is returned wrapped in ErrAcquisitionFailed.
func (i *Initializer) Acquire(ctx context.Context, cfg Config) (Handle, error) {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		handle, err := i.service.FromLockID(ctx, cfg.LockID, cfg.Email, cfg.Password)
		if err == nil {
			i.logger.Info("lock acquired",
				"lock_id", cfg.LockID,
				"name", handle.Name(),
				"attempt", attempt,
			)
			return handle, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		i.logger.Warn("lock lookup failed, retrying",
			"lock_id", cfg.LockID,
			"attempt", attempt,
			"max_retries", attempts,
			"retry_delay", cfg.RetryDelay.String(),
			"error", err,
		)

		if err := i.sleep(ctx, cfg.RetryDelay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAcquisitionFailed, err)
		}
	}

	i.logger.Error("lock lookup failed",
		"lock_id", cfg.LockID,
		"attempts", attempts,
		"error", lastErr,
	)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrAcquisitionFailed, attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
