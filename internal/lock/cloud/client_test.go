package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-lockbridge/internal/lock"
)

// fakeVendor is a minimal in-process lock API.
type fakeVendor struct {
	mu       sync.Mutex
	bolt     string
	tokens   map[string]bool
	next     int
	logins   int
	logouts  int
	commands []string
	failLock bool
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{bolt: "Unlocked", tokens: make(map[string]bool)}
}

func (f *fakeVendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodPost && r.URL.Path == "/api/v1/sessions" {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if req.Email != "owner@example.com" || req.Password != "secret" {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		f.next++
		f.logins++
		token := "tok-" + string(rune('a'+f.next))
		f.tokens[token] = true
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(loginResponse{Token: token})
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !f.tokens[token] {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/sessions/current":
		delete(f.tokens, token)
		f.logouts++
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/locks/front-door":
		_ = json.NewEncoder(w).Encode(lockInfo{ID: "front-door", Name: "Front Door"})
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/locks/front-door/state":
		_ = json.NewEncoder(w).Encode(boltResponse{BoltState: f.bolt})
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/locks/front-door/lock":
		f.commands = append(f.commands, "lock")
		if f.failLock {
			http.Error(w, "bolt jammed", http.StatusConflict)
			return
		}
		f.bolt = "Locked"
		w.WriteHeader(http.StatusAccepted)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/locks/front-door/unlock":
		f.commands = append(f.commands, "unlock")
		f.bolt = "Unlocked"
		w.WriteHeader(http.StatusAccepted)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeVendor) counts() (logins, logouts, open int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.logouts, len(f.tokens)
}

func newTestClient(t *testing.T) (*Client, *fakeVendor) {
	t.Helper()
	vendor := newFakeVendor()
	srv := httptest.NewServer(vendor)
	t.Cleanup(srv.Close)

	c, err := New(Options{URL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, vendor
}

func TestNewRejectsInvalidURL(t *testing.T) {
	for _, u := range []string{"", "not a url", "/relative"} {
		if _, err := New(Options{URL: u}); err == nil {
			t.Errorf("New(%q) should fail", u)
		}
	}
}

func TestFromLockID(t *testing.T) {
	c, vendor := newTestClient(t)

	h, err := c.FromLockID(context.Background(), "front-door", "owner@example.com", "secret")
	if err != nil {
		t.Fatalf("FromLockID() error = %v", err)
	}
	if h.Name() != "Front Door" {
		t.Errorf("Name() = %q, want %q", h.Name(), "Front Door")
	}

	logins, logouts, open := vendor.counts()
	if logins != 1 || logouts != 1 || open != 0 {
		t.Errorf("logins=%d logouts=%d open=%d, want 1/1/0", logins, logouts, open)
	}
}

func TestFromLockIDErrors(t *testing.T) {
	c, vendor := newTestClient(t)
	ctx := context.Background()

	_, err := c.FromLockID(ctx, "front-door", "owner@example.com", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("bad credentials error = %v, want ErrUnauthorized", err)
	}

	_, err = c.FromLockID(ctx, "back-door", "owner@example.com", "secret")
	if !errors.Is(err, ErrLockNotFound) {
		t.Errorf("unknown lock error = %v, want ErrLockNotFound", err)
	}

	if _, _, open := vendor.counts(); open != 0 {
		t.Errorf("open sessions = %d after failed lookups, want 0", open)
	}
}

func TestCommandsWithinSession(t *testing.T) {
	c, vendor := newTestClient(t)
	ctx := context.Background()

	h, err := c.FromLockID(ctx, "front-door", "owner@example.com", "secret")
	if err != nil {
		t.Fatalf("FromLockID() error = %v", err)
	}

	if err := h.Lock(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Lock() without session error = %v, want ErrNoSession", err)
	}

	sess, err := c.OpenSession(ctx, h)
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	if err := h.Lock(ctx); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	bolt, err := h.BoltState(ctx)
	if err != nil {
		t.Fatalf("BoltState() error = %v", err)
	}
	if bolt != "Locked" {
		t.Errorf("BoltState() = %q, want %q", bolt, "Locked")
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := h.BoltState(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("BoltState() after Close error = %v, want ErrNoSession", err)
	}

	logins, logouts, open := vendor.counts()
	if logins != 2 || logouts != 2 || open != 0 {
		t.Errorf("logins=%d logouts=%d open=%d, want 2/2/0", logins, logouts, open)
	}
}

func TestAdapterOverCloud(t *testing.T) {
	c, vendor := newTestClient(t)
	ctx := context.Background()

	var registered []*lock.Adapter
	initializer := lock.NewInitializer(lock.InitializerOptions{
		Service: c,
		Registrar: registrarFunc(func(_ context.Context, adapters []*lock.Adapter) error {
			registered = adapters
			return nil
		}),
	})

	cfg := lock.DefaultConfig()
	cfg.Email = "owner@example.com"
	cfg.Password = "secret"
	cfg.LockID = "front-door"
	cfg.Optimistic = false

	a, err := initializer.Initialize(ctx, cfg)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(registered) != 1 {
		t.Fatalf("registered %d adapters, want 1", len(registered))
	}

	if err := a.Lock(ctx); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !a.IsLocked() {
		t.Error("IsLocked() = false after Lock()")
	}

	vendor.mu.Lock()
	vendor.failLock = true
	vendor.mu.Unlock()

	if err := a.Unlock(ctx); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := a.Lock(ctx); !errors.Is(err, lock.ErrCommandFailed) {
		t.Fatalf("Lock() error = %v, want ErrCommandFailed", err)
	}
	if a.State() != lock.StateUnlocked {
		t.Errorf("State() = %q, want unlocked", a.State())
	}

	if _, _, open := vendor.counts(); open != 0 {
		t.Errorf("open sessions = %d, want 0", open)
	}
}

type registrarFunc func(context.Context, []*lock.Adapter) error

func (f registrarFunc) Register(ctx context.Context, adapters []*lock.Adapter) error {
	return f(ctx, adapters)
}
