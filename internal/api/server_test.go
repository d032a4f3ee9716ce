package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-lockbridge/internal/bridges/smartlock"
	"github.com/nerrad567/gray-logic-lockbridge/internal/device"
	"github.com/nerrad567/gray-logic-lockbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lockbridge/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// mockLocks is an in-memory LockService.
type mockLocks struct {
	mu         sync.Mutex
	locks      map[string]smartlock.LockStatus
	execErr    error
	history    []device.StateHistoryEntry
	historyErr error
	lastLimit  int
	listeners  []smartlock.StateListener
}

func newMockLocks() *mockLocks {
	return &mockLocks{
		locks: map[string]smartlock.LockStatus{
			"lock-front": {DeviceID: "lock-front", LockID: "FRONT", Name: "Front Door", Bolt: "unknown", Reachable: true},
		},
	}
}

func (m *mockLocks) List() []smartlock.LockStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]smartlock.LockStatus, 0, len(m.locks))
	for _, s := range m.locks {
		out = append(out, s)
	}
	return out
}

func (m *mockLocks) Get(id string) (smartlock.LockStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.locks[id]
	if !ok {
		return smartlock.LockStatus{}, fmt.Errorf("%w: %s", smartlock.ErrUnknownLock, id)
	}
	return s, nil
}

func (m *mockLocks) Execute(_ context.Context, id, command string) (smartlock.LockStatus, error) {
	m.mu.Lock()
	s, ok := m.locks[id]
	if !ok {
		m.mu.Unlock()
		return smartlock.LockStatus{}, fmt.Errorf("%w: %s", smartlock.ErrUnknownLock, id)
	}
	if m.execErr != nil {
		err := m.execErr
		m.mu.Unlock()
		return s, err
	}
	switch command {
	case smartlock.CommandLock:
		s.Locked, s.Bolt = true, "locked"
	case smartlock.CommandUnlock:
		s.Locked, s.Bolt = false, "unlocked"
	}
	m.locks[id] = s
	listeners := append([]smartlock.StateListener(nil), m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
	return s, nil
}

func (m *mockLocks) History(_ context.Context, id string, limit int) ([]device.StateHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locks[id]; !ok {
		return nil, fmt.Errorf("%w: %s", smartlock.ErrUnknownLock, id)
	}
	m.lastLimit = limit
	return m.history, m.historyErr
}

func (m *mockLocks) OnStateChange(fn smartlock.StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func testServer(t *testing.T) (*Server, *mockLocks) {
	t.Helper()

	locks := newMockLocks()
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
		Logger:   logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"),
		Locks:    locks,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, locks
}

// signToken mints an HS256 token like those issued to panels.
func signToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}).SignedString([]byte(secret))
}

func testToken(t *testing.T) string {
	t.Helper()
	token, err := signToken(testSecret, "panel-1", time.Minute)
	if err != nil {
		t.Fatalf("signToken() error = %v", err)
	}
	return token
}

// do runs a request through the router with a valid bearer token.
func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNewRequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	if _, err := New(Deps{Locks: newMockLocks()}); err == nil {
		t.Error("New() without logger expected error")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without lock service expected error")
	}
}

func TestHealthNoAuth(t *testing.T) {
	srv, _ := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["version"] != "test" || body["locks"] != float64(1) {
		t.Errorf("body = %v", body)
	}
}

type fakeDeviceStats struct{ stats device.Stats }

func (f fakeDeviceStats) GetStats() device.Stats { return f.stats }

func TestHealthReportsDevicesAndClients(t *testing.T) {
	srv, _ := testServer(t)
	srv.devices = fakeDeviceStats{stats: device.Stats{
		TotalDevices:   2,
		ByHealthStatus: map[device.HealthStatus]int{device.HealthStatusOnline: 1, device.HealthStatusOffline: 1},
	}}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	dialWS(t, ts)
	waitForClients(t, srv.hub, 1)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	var body struct {
		WebSocketClients int          `json:"websocket_clients"`
		Devices          device.Stats `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	if body.WebSocketClients != 1 {
		t.Errorf("websocket_clients = %d, want 1", body.WebSocketClients)
	}
	if body.Devices.TotalDevices != 2 || body.Devices.ByHealthStatus[device.HealthStatusOffline] != 1 {
		t.Errorf("devices = %+v", body.Devices)
	}
}

func TestHealthOmitsDevicesWithoutRegistry(t *testing.T) {
	srv, _ := testServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	body := decode[map[string]any](t, rec)
	if _, ok := body["devices"]; ok {
		t.Errorf("body = %v, want no devices field", body)
	}
	if body["websocket_clients"] != float64(0) {
		t.Errorf("websocket_clients = %v, want 0", body["websocket_clients"])
	}
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := testServer(t)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "panel-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "panel-1",
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	wrongSecret, err := signToken("another-secret-that-is-32-characters!!", "panel-1", time.Minute)
	if err != nil {
		t.Fatalf("signToken() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + testToken(t), http.StatusOK},
		{"lowercase scheme", "bearer " + testToken(t), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + testToken(t), http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"no expiry", "Bearer " + noExpiry, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + wrongSecret, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/locks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthRejectsEverythingWithoutSecret(t *testing.T) {
	srv, _ := testServer(t)
	srv.secCfg.JWT.Secret = ""

	if rec := do(t, srv, http.MethodGet, "/api/v1/locks"); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestListAndGetLocks(t *testing.T) {
	srv, _ := testServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/locks")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decode[listLocksResponse](t, rec)
	if list.Count != 1 || list.Locks[0].DeviceID != "lock-front" {
		t.Errorf("list = %+v", list)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/locks/lock-front")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decode[smartlock.LockStatus](t, rec); got.Name != "Front Door" {
		t.Errorf("get = %+v", got)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/locks/lock-missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", rec.Code)
	}
	if e := decode[Error](t, rec); e.Code != ErrCodeNotFound {
		t.Errorf("error code = %q", e.Code)
	}
}

func TestLockCommands(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		execErr    error
		wantStatus int
		wantLocked bool
	}{
		{"lock", "/api/v1/locks/lock-front/lock", nil, http.StatusOK, true},
		{"unlock", "/api/v1/locks/lock-front/unlock", nil, http.StatusOK, false},
		{"refresh", "/api/v1/locks/lock-front/refresh", nil, http.StatusOK, false},
		{"unknown lock", "/api/v1/locks/lock-missing/lock", nil, http.StatusNotFound, false},
		{"unknown command", "/api/v1/locks/lock-front/open", nil, http.StatusNotFound, false},
		{"vendor failure", "/api/v1/locks/lock-front/lock", errors.New("lock: command failed: jammed"), http.StatusBadGateway, false},
		{"bridge stopping", "/api/v1/locks/lock-front/lock", smartlock.ErrStopped, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, locks := testServer(t)
			locks.execErr = tt.execErr

			rec := do(t, srv, http.MethodPost, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}

			resp := decode[commandResponse](t, rec)
			if resp.CommandID == "" {
				t.Error("missing command_id")
			}
			if resp.Lock.Locked != tt.wantLocked {
				t.Errorf("Locked = %t, want %t", resp.Lock.Locked, tt.wantLocked)
			}
		})
	}
}

func TestLockCommandWrongMethod(t *testing.T) {
	srv, _ := testServer(t)
	if rec := do(t, srv, http.MethodGet, "/api/v1/locks/lock-front/lock"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestLockHistory(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		histErr    error
		wantStatus int
		wantLimit  int
	}{
		{"default limit", "", nil, http.StatusOK, defaultHistoryLimit},
		{"explicit limit", "?limit=5", nil, http.StatusOK, 5},
		{"zero limit", "?limit=0", nil, http.StatusBadRequest, 0},
		{"bad limit", "?limit=abc", nil, http.StatusBadRequest, 0},
		{"storage error", "", errors.New("disk full"), http.StatusInternalServerError, defaultHistoryLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, locks := testServer(t)
			locks.historyErr = tt.histErr

			rec := do(t, srv, http.MethodGet, "/api/v1/locks/lock-front/history"+tt.query)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if locks.lastLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", locks.lastLimit, tt.wantLimit)
			}
			if rec.Code == http.StatusOK {
				resp := decode[historyResponse](t, rec)
				if resp.Entries == nil || resp.DeviceID != "lock-front" {
					t.Errorf("response = %+v", resp)
				}
			}
		})
	}

	srv, _ := testServer(t)
	if rec := do(t, srv, http.MethodGet, "/api/v1/locks/lock-missing/history"); rec.Code != http.StatusNotFound {
		t.Errorf("missing lock status = %d, want 404", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if id := rec.Header().Get("X-Request-ID"); len(id) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a UUID", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if id := rec.Header().Get("X-Request-ID"); id != "abc-123" {
		t.Errorf("X-Request-ID = %q, want echoed", id)
	}
}

func TestCORS(t *testing.T) {
	srv, _ := testServer(t)
	srv.cfg.CORS.AllowedOrigins = []string{"https://panel.local"}

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"https://panel.local", "https://panel.local"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/locks", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("%s: preflight status = %d", tt.origin, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
			t.Errorf("%s: Allow-Origin = %q, want %q", tt.origin, got, tt.wantAllow)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartAndClose(t *testing.T) {
	srv, _ := testServer(t)
	ctx := context.Background()

	if err := srv.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() before Start expected error")
	}
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() expected error")
	}
	if err := srv.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestWebSocketBroadcastsStateChanges(t *testing.T) {
	srv, locks := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	// Upgrades without a token are rejected.
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("Dial() without token expected error")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated dial response = %v", resp)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+testToken(t), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Locks: []string{"lock-front"}},
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	//nolint:errcheck // deadline for test reads
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("reading subscribe response: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", ack)
	}
	ackPayload, _ := ack.Payload.(map[string]any) //nolint:errcheck // checked below
	if snapshot, _ := ackPayload["locks"].([]any); len(snapshot) != 1 { //nolint:errcheck // checked by length
		t.Errorf("subscribe snapshot = %v, want one lock", ackPayload["locks"])
	}

	if _, err := locks.Execute(context.Background(), "lock-front", smartlock.CommandLock); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != EventLockStateChanged {
		t.Fatalf("event = %+v", event)
	}
	payload, _ := event.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["device_id"] != "lock-front" || payload["locked"] != true {
		t.Errorf("event payload = %v", event.Payload)
	}
}

func TestWebSocketPing(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	header := http.Header{"Authorization": []string{"Bearer " + testToken(t)}}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	//nolint:errcheck // deadline for test reads
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var pong WSMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if pong.Type != WSTypePong || pong.ID != "p1" {
		t.Errorf("pong = %+v", pong)
	}
}

func TestWSPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", "/ws"},
		{"/ws", "/ws"},
		{"events", "/events"},
	}
	for _, tt := range tests {
		s := &Server{wsCfg: config.WebSocketConfig{Path: tt.path}}
		if got := s.wsPath(); got != tt.want {
			t.Errorf("wsPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

// dialWS opens an authenticated socket against ts.
func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	header := http.Header{"Authorization": []string{"Bearer " + testToken(t)}}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	//nolint:errcheck // deadline for test reads
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

// roundTrip sends msg and returns the next frame.
func roundTrip(t *testing.T, conn *websocket.Conn, msg WSMessage) WSMessage {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var got WSMessage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return got
}

func TestWebSocketSubscriptionFilter(t *testing.T) {
	srv, locks := testServer(t)
	locks.mu.Lock()
	locks.locks["lock-back"] = smartlock.LockStatus{DeviceID: "lock-back", LockID: "BACK", Name: "Back Door", Reachable: true}
	locks.mu.Unlock()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	conn := dialWS(t, ts)

	resp := roundTrip(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "s", Payload: WSSubscribePayload{Locks: []string{"lock-back"}}})
	if resp.Type != WSTypeResponse {
		t.Fatalf("subscribe response = %+v", resp)
	}

	// lock-front is not watched, so the next event must be lock-back's.
	for _, id := range []string{"lock-front", "lock-back"} {
		if _, err := locks.Execute(context.Background(), id, smartlock.CommandLock); err != nil {
			t.Fatalf("Execute(%s) error = %v", id, err)
		}
	}

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	payload, _ := event.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["device_id"] != "lock-back" {
		t.Errorf("event device_id = %v, want lock-back", payload["device_id"])
	}
}

func TestWebSocketSubscribeUnknownLock(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	conn := dialWS(t, ts)

	resp := roundTrip(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "s", Payload: WSSubscribePayload{Locks: []string{"nope"}}})
	if resp.Type != WSTypeError || resp.ID != "s" {
		t.Fatalf("response = %+v, want error", resp)
	}
	payload, _ := resp.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["code"] != ErrCodeNotFound {
		t.Errorf("error code = %v, want %s", payload["code"], ErrCodeNotFound)
	}
}

func TestWebSocketCommand(t *testing.T) {
	tests := []struct {
		name     string
		payload  any
		execErr  error
		wantType string
		wantCode string
	}{
		{"lock", WSCommandPayload{DeviceID: "lock-front", Command: smartlock.CommandLock}, nil, WSTypeResponse, ""},
		{"unknown lock", WSCommandPayload{DeviceID: "nope", Command: smartlock.CommandLock}, nil, WSTypeError, ErrCodeNotFound},
		{"vendor failure", WSCommandPayload{DeviceID: "lock-front", Command: smartlock.CommandUnlock}, errors.New("jammed"), WSTypeError, ErrCodeLockFailed},
		{"missing fields", map[string]string{"device_id": "lock-front"}, nil, WSTypeError, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, locks := testServer(t)
			locks.execErr = tt.execErr
			ts := httptest.NewServer(srv.Handler())
			t.Cleanup(ts.Close)
			conn := dialWS(t, ts)

			resp := roundTrip(t, conn, WSMessage{Type: WSTypeCommand, ID: "c1", Payload: tt.payload})
			if resp.Type != tt.wantType || resp.ID != "c1" {
				t.Fatalf("response = %+v, want type %s", resp, tt.wantType)
			}
			payload, _ := resp.Payload.(map[string]any) //nolint:errcheck // checked below
			if tt.wantCode != "" {
				if payload["code"] != tt.wantCode {
					t.Errorf("error code = %v, want %s", payload["code"], tt.wantCode)
				}
				return
			}
			lock, _ := payload["lock"].(map[string]any) //nolint:errcheck // checked below
			if lock["locked"] != true || payload["command_id"] == "" {
				t.Errorf("command response = %v", payload)
			}
		})
	}
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	conn := dialWS(t, ts)

	resp := roundTrip(t, conn, WSMessage{Type: "teleport", ID: "x"})
	if resp.Type != WSTypeError {
		t.Errorf("response = %+v, want error", resp)
	}
}
