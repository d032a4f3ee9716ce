// Package cloud implements lock.Service against the lock vendor's JSON API.
//
// Every session is a login/logout pair: OpenSession posts the account
// credentials and receives a bearer token, Close revokes it. Commands on a
// handle use the token of the session currently open on it.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lockbridge/internal/lock"
)

// DefaultTimeout bounds each HTTP request to the vendor.
const DefaultTimeout = 10 * time.Second

// maxErrorBody limits how much of an error response is kept.
const maxErrorBody = 512

// Sentinel errors for vendor API calls.
var (
	// ErrUnauthorized indicates the credentials or session token were rejected.
	ErrUnauthorized = errors.New("cloud: unauthorized")

	// ErrLockNotFound indicates the lock ID is unknown to the account.
	ErrLockNotFound = errors.New("cloud: lock not found")

	// ErrNoSession indicates a command was issued without an open session.
	ErrNoSession = errors.New("cloud: no open session")

	// ErrRequestFailed indicates any other non-success response.
	ErrRequestFailed = errors.New("cloud: request failed")
)

// Options configures a Client.
type Options struct {
	// URL is the API base URL, e.g. "https://locks.example.com".
	URL string

	// Timeout bounds each request. Default: DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
}

// Client talks to the vendor API. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.URL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("cloud: invalid url %q", opts.URL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{baseURL: base, httpClient: hc}, nil
}

// FromLockID implements lock.Service. It logs in, reads the lock's name,
// and logs out again.
func (c *Client) FromLockID(ctx context.Context, lockID, email, password string) (h lock.Handle, err error) {
	token, err := c.login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	defer func() {
		if logoutErr := c.logout(context.WithoutCancel(ctx), token); logoutErr != nil && err == nil {
			err = logoutErr
		}
	}()

	var info lockInfo
	if err := c.do(ctx, http.MethodGet, lockPath(lockID), token, nil, &info); err != nil {
		return nil, fmt.Errorf("looking up lock %s: %w", lockID, err)
	}

	return &handle{
		client:   c,
		lockID:   lockID,
		name:     info.Name,
		email:    email,
		password: password,
	}, nil
}

// OpenSession implements lock.Service.
func (c *Client) OpenSession(ctx context.Context, h lock.Handle) (lock.Session, error) {
	ch, ok := h.(*handle)
	if !ok || ch.client != c {
		return nil, fmt.Errorf("cloud: foreign handle %T", h)
	}

	token, err := c.login(ctx, ch.email, ch.password)
	if err != nil {
		return nil, err
	}
	ch.setToken(token)

	return &session{handle: ch, token: token}, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type lockInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type boltResponse struct {
	BoltState string `json:"bolt_state"`
}

func (c *Client) login(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", "", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login: %w: empty token", ErrRequestFailed)
	}
	return resp.Token, nil
}

func (c *Client) logout(ctx context.Context, token string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/sessions/current", token, nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrRequestFailed, err)
	}
	return nil
}

func statusError(code int, msg string) error {
	var sentinel error
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrUnauthorized
	case http.StatusNotFound:
		sentinel = ErrLockNotFound
	default:
		sentinel = ErrRequestFailed
	}
	if msg == "" {
		return fmt.Errorf("%w: status %d", sentinel, code)
	}
	return fmt.Errorf("%w: status %d: %s", sentinel, code, msg)
}

func lockPath(lockID string) string {
	return "/api/v1/locks/" + url.PathEscape(lockID)
}

// handle is a resolved lock. The credentials are kept so sessions can be
// opened later without the caller re-supplying them.
type handle struct {
	client   *Client
	lockID   string
	name     string
	email    string
	password string

	mu    sync.Mutex
	token string
}

func (h *handle) Name() string {
	return h.name
}

func (h *handle) Lock(ctx context.Context) error {
	return h.post(ctx, "/lock")
}

func (h *handle) Unlock(ctx context.Context) error {
	return h.post(ctx, "/unlock")
}

func (h *handle) BoltState(ctx context.Context) (string, error) {
	token, err := h.currentToken()
	if err != nil {
		return "", err
	}
	var resp boltResponse
	if err := h.client.do(ctx, http.MethodGet, lockPath(h.lockID)+"/state", token, nil, &resp); err != nil {
		return "", err
	}
	return resp.BoltState, nil
}

func (h *handle) post(ctx context.Context, action string) error {
	token, err := h.currentToken()
	if err != nil {
		return err
	}
	return h.client.do(ctx, http.MethodPost, lockPath(h.lockID)+action, token, nil, nil)
}

func (h *handle) currentToken() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.token == "" {
		return "", ErrNoSession
	}
	return h.token, nil
}

func (h *handle) setToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
}

// clearToken forgets token if it is still the active one.
func (h *handle) clearToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.token == token {
		h.token = ""
	}
}

type session struct {
	handle *handle
	token  string
	once   sync.Once
	err    error
}

// Close revokes the session token. Safe to call more than once.
func (s *session) Close() error {
	s.once.Do(func() {
		s.handle.clearToken(s.token)
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		s.err = s.handle.client.logout(ctx, s.token)
	})
	return s.err
}
