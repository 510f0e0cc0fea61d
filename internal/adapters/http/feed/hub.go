// Package feed streams applied votes to websocket subscribers of a scope.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// Connection tuning.
const (
	sendBuffer     = 32
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

// Hub tracks subscribers per scope key. It is safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	scopes map[string]map[*client]struct{}
	closed bool

	upgrader websocket.Upgrader
	logger   logger.Logger
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	scope string
	send  chan []byte
}

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithCheckOrigin overrides the websocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		scopes: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish sends e to every subscriber of its scope. A subscriber whose buffer
// is full is disconnected rather than allowed to slow the others.
func (h *Hub) Publish(ctx context.Context, e types.FeedEvent) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.logger.Error(ctx, "encode feed event", logger.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.scopes[e.Scope] {
		select {
		case c.send <- msg:
		default:
			metrics.RecordFeedDropped()
			h.dropLocked(c)
			h.logger.Warn(ctx, "slow feed subscriber dropped", logger.String("scope", c.scope))
		}
	}
}

// Serve upgrades the request and subscribes the connection to scopeKey.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, scopeKey string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	c := &client{hub: h, conn: conn, scope: scopeKey, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// Subscribers returns the number of subscribers of scopeKey.
func (h *Hub) Subscribers(scopeKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scopeKey])
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.scopes {
		for c := range set {
			h.dropLocked(c)
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set := h.scopes[c.scope]
	if set == nil {
		set = make(map[*client]struct{})
		h.scopes[c.scope] = set
	}
	set[c] = struct{}{}
	metrics.UpdateFeedSubscribers(h.countLocked())
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked removes c and closes its send channel. Callers hold h.mu.
func (h *Hub) dropLocked(c *client) {
	set, ok := h.scopes[c.scope]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.scopes, c.scope)
	}
	metrics.UpdateFeedSubscribers(h.countLocked())
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.scopes {
		n += len(set)
	}
	return n
}

// readPump discards client messages and notices disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
