package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-lockbridge/internal/bridges/smartlock"
	"github.com/nerrad567/gray-logic-lockbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lockbridge/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeCommand     = "command"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// WSAllLocks subscribes a client to every managed lock.
const WSAllLocks = "*"

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 64

	// wsCommandTimeout bounds a lock command issued over the socket.
	wsCommandTimeout = 30 * time.Second

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects locks by device ID. An empty list or "*"
// means all locks.
type WSSubscribePayload struct {
	Locks []string `json:"locks"`
}

// WSCommandPayload asks the bridge to run a command on one lock.
type WSCommandPayload struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
}

// WSErrorPayload is sent with WSTypeError frames.
type WSErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Hub tracks connected clients and fans lock state changes out to them.
type Hub struct {
	cfg     config.WebSocketConfig
	locks   LockService
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one authenticated WebSocket connection.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	subject string

	mu      sync.RWMutex
	allLock bool
	watch   map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub that serves state from locks.
func NewHub(cfg config.WebSocketConfig, locks LockService, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		locks:   locks,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", client.subject, "clients", n)
}

// unregister removes client. Only the caller that removes it from the map
// closes the send channel.
func (h *Hub) unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "subject", client.subject, "clients", n)
}

// BroadcastState sends a lock.state_changed event to every client watching
// the lock.
func (h *Hub) BroadcastState(status smartlock.LockStatus) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: EventLockStateChanged,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   status,
	})
	if err != nil {
		h.logger.Error("failed to marshal lock event", "device_id", status.DeviceID, "error", err)
		return
	}

	// Snapshot under the hub lock so client locks are never held with it.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.watching(status.DeviceID) {
			c.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("lock event sent", "device_id", status.DeviceID, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// handleWebSocket upgrades the request. authMiddleware has already run.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, wsSendBufferSize),
		subject: subjectFrom(r.Context()),
		watch:   make(map[string]struct{}),
	}
	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}

// wsTimings returns the ping interval and pong timeout, defaulting unset
// values.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping, pong = defaultPingInterval, defaultPongTimeout
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pong = time.Duration(cfg.PongTimeout) * time.Second
	}
	return ping, pong
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	if c.hub.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	}
	ping, pong := wsTimings(c.hub.cfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }

	//nolint:errcheck // best-effort
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame keeps the
		// connection alive.
		//nolint:errcheck // best-effort
		extend()
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump() {
	ping, pong := wsTimings(c.hub.cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pong))
			if !ok {
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pong))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", ErrCodeBadRequest, "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg.ID, msg.Payload)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg.ID, msg.Payload)
	case WSTypeCommand:
		c.handleCommand(msg.ID, msg.Payload)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, ErrCodeBadRequest, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe adds locks to the watch list and replies with their
// current state so the client starts from a known snapshot.
func (c *WSClient) handleSubscribe(id string, raw json.RawMessage) {
	var sub WSSubscribePayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sub); err != nil {
			c.sendError(id, ErrCodeBadRequest, "invalid subscribe payload")
			return
		}
	}

	all := len(sub.Locks) == 0 || slices.Contains(sub.Locks, WSAllLocks)
	snapshot := make([]smartlock.LockStatus, 0, len(sub.Locks))
	if all {
		snapshot = c.hub.locks.List()
	} else {
		for _, deviceID := range sub.Locks {
			status, err := c.hub.locks.Get(deviceID)
			if err != nil {
				c.sendError(id, ErrCodeNotFound, "lock not found: "+deviceID)
				return
			}
			snapshot = append(snapshot, status)
		}
	}

	c.mu.Lock()
	if all {
		c.allLock = true
	}
	for _, deviceID := range sub.Locks {
		if deviceID != WSAllLocks {
			c.watch[deviceID] = struct{}{}
		}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed", "subject", c.subject, "locks", sub.Locks)
	c.reply(id, WSTypeResponse, map[string]any{
		"subscribed": sub.Locks,
		"locks":      snapshot,
	})
}

func (c *WSClient) handleUnsubscribe(id string, raw json.RawMessage) {
	var sub WSSubscribePayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sub); err != nil {
			c.sendError(id, ErrCodeBadRequest, "invalid unsubscribe payload")
			return
		}
	}

	c.mu.Lock()
	if len(sub.Locks) == 0 || slices.Contains(sub.Locks, WSAllLocks) {
		c.allLock = false
		clear(c.watch)
	}
	for _, deviceID := range sub.Locks {
		delete(c.watch, deviceID)
	}
	c.mu.Unlock()

	c.reply(id, WSTypeResponse, map[string]any{"unsubscribed": sub.Locks})
}

// handleCommand runs a lock command without blocking the read loop.
func (c *WSClient) handleCommand(id string, raw json.RawMessage) {
	var cmd WSCommandPayload
	if err := json.Unmarshal(raw, &cmd); err != nil || cmd.DeviceID == "" || cmd.Command == "" {
		c.sendError(id, ErrCodeBadRequest, "command requires device_id and command")
		return
	}

	commandID := uuid.NewString()
	c.hub.logger.Info("lock command",
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
		"command_id", commandID,
		"subject", c.subject,
		"transport", "websocket",
	)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), wsCommandTimeout)
		defer cancel()

		status, err := c.hub.locks.Execute(ctx, cmd.DeviceID, cmd.Command)
		if err != nil {
			_, code := classifyLockError(err)
			c.sendError(id, code, err.Error())
			return
		}
		c.reply(id, WSTypeResponse, commandResponse{
			CommandID: commandID,
			Command:   cmd.Command,
			Lock:      status,
		})
	}()
}

func (c *WSClient) watching(deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.allLock {
		return true
	}
	_, ok := c.watch[deviceID]
	return ok
}

// trySend queues data without blocking. Frames for slow clients are
// dropped and sends racing a disconnect are absorbed.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, code, message string) {
	c.reply(id, WSTypeError, WSErrorPayload{Code: code, Message: message})
}
