// Package simulator provides an in-memory lock service for development
// and testing.
//
// Locks are added with AddLock and behave like the cloud service: commands
// require an open session, and the bolt state is reported with an initial
// capital ("Locked", "Unlocked"). Failures can be injected per lock.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-lockbridge/internal/lock"
)

// Errors returned by the simulator.
var (
	ErrLockNotFound      = errors.New("simulator: lock not found")
	ErrInvalidCredential = errors.New("simulator: invalid credentials")
	ErrNoSession         = errors.New("simulator: no open session")
	ErrJammed            = errors.New("simulator: bolt jammed")
	ErrUnavailable       = errors.New("simulator: service unavailable")
	ErrLogout            = errors.New("simulator: logout failed")
)

// Bolt states reported by the simulator.
const (
	BoltLocked   = "Locked"
	BoltUnlocked = "Unlocked"
	BoltJammed   = "Jammed"
)

// Service is an in-memory lock.Service.
type Service struct {
	mu       sync.Mutex
	email    string
	password string
	locks    map[string]*simLock

	failLookups int
	failCloses  int
	opened      int
	closed      int
}

type simLock struct {
	id       string
	name     string
	bolt     string
	stuck    bool
	sessions int
}

// New creates a simulator that accepts only the given credentials.
func New(email, password string) *Service {
	return &Service{
		email:    email,
		password: password,
		locks:    make(map[string]*simLock),
	}
}

// AddLock registers a lock with an initial bolt state.
func (s *Service) AddLock(id, name, bolt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[id] = &simLock{id: id, name: name, bolt: bolt}
}

// FailLookups makes the next n FromLockID calls fail with ErrUnavailable.
func (s *Service) FailLookups(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLookups = n
}

// FailCloses makes the next n session closes fail with ErrLogout. The
// session is still released.
func (s *Service) FailCloses(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCloses = n
}

// SetStuck makes lock and unlock commands on id fail with ErrJammed.
func (s *Service) SetStuck(id string, stuck bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		l.stuck = stuck
	}
}

// SetBolt changes the bolt state directly, as if operated by hand.
func (s *Service) SetBolt(id, bolt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		l.bolt = bolt
	}
}

// Bolt returns the current bolt state of id.
func (s *Service) Bolt(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l.bolt
	}
	return ""
}

// Sessions returns the number of sessions opened and closed so far.
func (s *Service) Sessions() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

// FromLockID implements lock.Service.
func (s *Service) FromLockID(ctx context.Context, lockID, email, password string) (lock.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLookups > 0 {
		s.failLookups--
		return nil, ErrUnavailable
	}
	if email != s.email || password != s.password {
		return nil, ErrInvalidCredential
	}
	l, ok := s.locks[lockID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockNotFound, lockID)
	}
	return &handle{svc: s, lock: l}, nil
}

// OpenSession implements lock.Service.
func (s *Service) OpenSession(ctx context.Context, h lock.Handle) (lock.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh, ok := h.(*handle)
	if !ok || sh.svc != s {
		return nil, fmt.Errorf("simulator: foreign handle %T", h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	sh.lock.sessions++
	return &session{svc: s, lock: sh.lock}, nil
}

type session struct {
	svc    *Service
	lock   *simLock
	closed bool
}

func (s *session) Close() error {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.svc.closed++
	s.lock.sessions--
	if s.svc.failCloses > 0 {
		s.svc.failCloses--
		return ErrLogout
	}
	return nil
}

type handle struct {
	svc  *Service
	lock *simLock
}

func (h *handle) Name() string {
	return h.lock.name
}

func (h *handle) Lock(ctx context.Context) error {
	return h.set(ctx, BoltLocked)
}

func (h *handle) Unlock(ctx context.Context) error {
	return h.set(ctx, BoltUnlocked)
}

func (h *handle) BoltState(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	if h.lock.sessions == 0 {
		return "", ErrNoSession
	}
	return h.lock.bolt, nil
}

func (h *handle) set(ctx context.Context, bolt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	if h.lock.sessions == 0 {
		return ErrNoSession
	}
	if h.lock.stuck {
		h.lock.bolt = BoltJammed
		return ErrJammed
	}
	h.lock.bolt = bolt
	return nil
}
