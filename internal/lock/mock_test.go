package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errVendor = errors.New("vendor unavailable")

// mockHandle implements Handle for testing.
type mockHandle struct {
	name      string
	bolt      string
	lockErr   error
	unlockErr error
	boltErr   error
	calls     []string
}

func (h *mockHandle) Name() string { return h.name }

func (h *mockHandle) Lock(context.Context) error {
	h.calls = append(h.calls, "lock")
	return h.lockErr
}

func (h *mockHandle) Unlock(context.Context) error {
	h.calls = append(h.calls, "unlock")
	return h.unlockErr
}

func (h *mockHandle) BoltState(context.Context) (string, error) {
	h.calls = append(h.calls, "bolt_state")
	return h.bolt, h.boltErr
}

// mockSession records whether it was released.
type mockSession struct {
	svc      *mockService
	closeErr error
}

func (s *mockSession) Close() error {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	s.svc.closed++
	return s.closeErr
}

// mockService implements Service for testing.
type mockService struct {
	mu sync.Mutex

	handle *mockHandle

	// failLookups makes the first N FromLockID calls fail.
	failLookups int
	lookups     int

	openErr  error
	closeErr error
	opened   int
	closed   int
}

func newMockService(h *mockHandle) *mockService {
	return &mockService{handle: h}
}

func (s *mockService) FromLockID(_ context.Context, _, _, _ string) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.lookups <= s.failLookups {
		return nil, errVendor
	}
	return s.handle, nil
}

func (s *mockService) OpenSession(context.Context, Handle) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opened++
	return &mockSession{svc: s, closeErr: s.closeErr}, nil
}

func (s *mockService) sessions() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

// mockRegistrar records registered adapters.
type mockRegistrar struct {
	err        error
	registered []*Adapter
}

func (r *mockRegistrar) Register(_ context.Context, adapters []*Adapter) error {
	if r.err != nil {
		return r.err
	}
	r.registered = append(r.registered, adapters...)
	return nil
}

// sleepRecorder counts retry pauses without sleeping.
type sleepRecorder struct {
	durations []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.durations = append(s.durations, d)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Email = "owner@example.com"
	cfg.Password = "secret"
	cfg.LockID = "front-door"
	return cfg
}
