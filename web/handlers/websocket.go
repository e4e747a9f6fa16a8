package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket" //nolint:staticcheck // github.com/coder/websocket is the maintained fork
)

// Event types pushed to browser tabs.
const (
	EventSessionExpired  = "session_expired"
	EventMemoriesChanged = "memories_changed"
	EventServerShutdown  = "server_shutdown"
)

// Event is a message pushed to the tabs of one console session.
type Event struct {
	Type string `json:"type"`
	// Count is the number of memories affected, when relevant.
	Count int `json:"count,omitempty"`
}

// WebSocketHub tracks the open tabs of every console session and pushes
// session-scoped events to them.
type WebSocketHub struct {
	clients    map[string]map[clientInterface]bool
	deliver    chan delivery
	register   chan registration
	unregister chan registration
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	writers    sync.WaitGroup
	closing    bool
	logger     *zap.Logger

	allowedOrigins []string
}

type registration struct {
	key    string
	client clientInterface
}

type delivery struct {
	key  string
	data []byte
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	close()
}

// Client represents a WebSocket connection of one tab.
type Client struct {
	hub  *WebSocketHub
	key  string
	conn *websocket.Conn
	send chan []byte
}

func (c *Client) getSendChannel() chan []byte {
	return c.send
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

// NewWebSocketHub creates a hub. allowedOrigins are host[:port] patterns
// accepted in addition to the request's own host.
func NewWebSocketHub(logger *zap.Logger, allowedOrigins ...string) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		clients:        make(map[string]map[clientInterface]bool),
		deliver:        make(chan delivery, 256),
		register:       make(chan registration),
		unregister:     make(chan registration),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
}

// Run starts the hub's message processing loop. It returns after Stop.
func (h *WebSocketHub) Run() {
	defer close(h.done)
	for {
		select {
		case reg := <-h.register:
			h.mu.Lock()
			if h.ctx.Err() != nil {
				// Stop already ran; don't track clients it cannot close.
				h.mu.Unlock()
				close(reg.client.getSendChannel())
				reg.client.close()
				continue
			}
			tabs := h.clients[reg.key]
			if tabs == nil {
				tabs = make(map[clientInterface]bool)
				h.clients[reg.key] = tabs
			}
			tabs[reg.client] = true
			count := len(tabs)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", zap.String("session", reg.key), zap.Int("tabs", count))

		case reg := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(reg.key, reg.client)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", zap.String("session", reg.key))

		case d := <-h.deliver:
			// Full lock: slow clients are dropped from the map.
			h.mu.Lock()
			for client := range h.clients[d.key] {
				select {
				case client.getSendChannel() <- d.data:
				default:
					h.logger.Warn("websocket client too slow, disconnecting", zap.String("session", d.key))
					h.removeLocked(d.key, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// removeLocked drops client and closes its send channel. h.mu must be held.
func (h *WebSocketHub) removeLocked(key string, client clientInterface) {
	tabs, ok := h.clients[key]
	if !ok || !tabs[client] {
		return
	}
	delete(tabs, client)
	close(client.getSendChannel())
	if len(tabs) == 0 {
		delete(h.clients, key)
	}
}

// Stop shuts the hub down and closes every connection.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for _, tabs := range h.clients {
		for client := range tabs {
			close(client.getSendChannel())
			client.close()
		}
	}
	h.clients = make(map[string]map[clientInterface]bool)
	h.mu.Unlock()
}

// Wait blocks until Run has returned.
func (h *WebSocketHub) Wait() {
	<-h.done
}

// SendTo pushes ev to every tab of the session key.
func (h *WebSocketHub) SendTo(key string, ev Event) {
	h.enqueue(key, ev)
}

// Shutdown queues ev for every connected tab, waits until the tabs have
// written their pending messages or ctx is done, and then stops the hub.
func (h *WebSocketHub) Shutdown(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", zap.Error(err))
		h.Stop()
		return
	}

	h.mu.Lock()
	h.closing = true
	tabs := 0
	for key, clients := range h.clients {
		for client := range clients {
			select {
			case client.getSendChannel() <- data:
			default:
			}
			// Closing the send channel lets the writer drain it and hang up.
			h.removeLocked(key, client)
			tabs++
		}
	}
	h.mu.Unlock()

	flushed := make(chan struct{})
	go func() {
		h.writers.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-ctx.Done():
		h.logger.Warn("websocket tabs did not flush before shutdown", zap.Error(ctx.Err()))
	}
	h.logger.Debug("websocket hub shut down", zap.Int("tabs", tabs))
	h.Stop()
}

func (h *WebSocketHub) enqueue(key string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", zap.Error(err))
		return
	}
	select {
	case h.deliver <- delivery{key: key, data: data}:
	default:
		h.logger.Warn("websocket delivery channel full, dropping event", zap.String("type", ev.Type))
	}
}

// Connected returns the number of open tabs of session key.
func (h *WebSocketHub) Connected(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[key])
}

// Register adds a client for session key to the hub.
func (h *WebSocketHub) Register(key string, client clientInterface) {
	select {
	case h.register <- registration{key: key, client: client}:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub.
func (h *WebSocketHub) Unregister(key string, client clientInterface) {
	select {
	case h.unregister <- registration{key: key, client: client}:
	case <-h.ctx.Done():
	}
}

// ServeHTTP upgrades the connection of an authenticated tab. It must run
// behind SessionMiddleware and RequireSession.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if s == nil || !s.Active() {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:  h,
		key:  s.Key(),
		conn: conn,
		send: make(chan []byte, 16),
	}
	h.mu.Lock()
	if h.closing || h.ctx.Err() != nil {
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.writers.Add(1)
	h.mu.Unlock()
	h.Register(client.key, client)

	go client.writePump()
	go client.readPump()
}

// writePump sends messages to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c.key, c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()
	defer c.hub.writers.Done()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.hub.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-c.hub.ctx.Done():
			return
		}
	}
}

// readPump drains client messages to detect disconnections.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c.key, c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil {
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) getSendChannel() chan []byte {
	return m.SendChan
}

func (m *MockClient) close() {}
