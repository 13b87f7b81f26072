// Package websocket streams domain events to connected staff clients. Each
// client holds a set of event patterns and receives the events that match
// any of them.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/events"
)

const (
	sendBuffer     = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// DefaultPatterns is the subscription of a client that names none.
var DefaultPatterns = []string{"appointment.*", "invoice.*"}

// ClientMessage is an inbound subscription change.
type ClientMessage struct {
	Action   string   `json:"action"`
	Patterns []string `json:"patterns"`
}

// Client is one connected stream.
type Client struct {
	ID       string
	UserID   uuid.UUID
	Send     chan []byte
	patterns map[string]struct{}
}

func newClient(userID uuid.UUID, patterns []string) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Send:     make(chan []byte, sendBuffer),
		patterns: make(map[string]struct{}),
	}
	for _, p := range patterns {
		c.patterns[p] = struct{}{}
	}
	return c
}

func (c *Client) wants(eventType string) bool {
	for p := range c.patterns {
		if events.Matches(p, eventType) {
			return true
		}
	}
	return false
}

// Hub tracks connected clients. It implements events.Publisher so it can sit
// in an events.Fanout next to the broker.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{clients: make(map[*Client]struct{}), logger: logger}
}

// Register adds c. It reports false once the hub is closed.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// Unregister removes c and closes its Send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.Send)
}

// ProcessMessage applies a subscribe or unsubscribe request from c.
func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, p := range msg.Patterns {
			if p = strings.TrimSpace(p); p != "" {
				c.patterns[p] = struct{}{}
			}
		}
	case "unsubscribe":
		for _, p := range msg.Patterns {
			delete(c.patterns, strings.TrimSpace(p))
		}
	}
}

// Publish sends ev to every client subscribed to its type. A client whose
// buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev.Type) {
			continue
		}
		select {
		case c.Send <- data:
		default:
			h.logger.Warn().Str("client_id", c.ID).Str("event_type", ev.Type).Msg("event stream buffer full, dropping event")
		}
	}
	return nil
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.Send)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Patterns returns the current subscription of c.
func (h *Hub) Patterns(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.patterns))
	for p := range c.patterns {
		out = append(out, p)
	}
	return out
}

// Handler upgrades GET /events/stream to a websocket.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler accepts browser upgrades only from allowedOrigins. "*" allows
// any origin. Requests without an Origin header are always accepted.
func NewHandler(hub *Hub, allowedOrigins []string, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/events/stream", h.Connect, auth.RequireCapability(auth.CapEventStream))
}

// Connect upgrades the request. The optional events query parameter is a
// comma-separated list of patterns replacing DefaultPatterns.
func (h *Handler) Connect(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	patterns := DefaultPatterns
	if q := c.QueryParam("events"); q != "" {
		patterns = nil
		for _, p := range strings.Split(q, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		return nil
	}
	client := newClient(ident.ID, patterns)
	if !h.hub.Register(client) {
		_ = ws.WriteControl(gorillawebsocket.CloseMessage,
			gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		return ws.Close()
	}
	h.logger.Info().Str("client_id", client.ID).Str("user_id", ident.ID.String()).
		Strs("patterns", patterns).Msg("event stream connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(c *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(c)
		ws.Close()
		h.logger.Info().Str("client_id", c.ID).Msg("event stream disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(c, msg)
	}
}

func (h *Handler) writePump(c *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
