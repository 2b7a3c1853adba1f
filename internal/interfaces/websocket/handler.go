// Package websocket exposes the notification hub to browser clients.
// Clients join and leave groups; every connection is in the All group.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/event"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// Client message actions
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// Server message types
const (
	TypeEvent = "event"
	TypeAck   = "ack"
	TypeError = "error"
)

// errClientGone is returned by Send once the connection is closing
var errClientGone = errors.New("websocket client disconnected")

// Config holds websocket configuration
type Config struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		SendBuffer:     64,
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		MaxMessageSize: 4096,
	}
}

// ClientMessage is sent by clients to manage group membership
type ClientMessage struct {
	Action string `json:"action"`
	Group  string `json:"group"`
}

// ServerMessage is pushed to clients
type ServerMessage struct {
	Type  string       `json:"type"`
	Group string       `json:"group,omitempty"`
	Event *event.Event `json:"event,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Handler upgrades HTTP requests and registers each connection as a subscriber
type Handler struct {
	config    Config
	transport port.NotificationTransport
	upgrader  websocket.Upgrader
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[string]*client
}

// NewHandler creates a websocket handler subscribing clients on transport
func NewHandler(config Config, transport port.NotificationTransport, logger *zap.Logger) *Handler {
	defaults := DefaultConfig()
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = defaults.PongTimeout
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}

	h := &Handler{
		config:    config,
		transport: transport,
		logger:    logger,
		clients:   make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the connection and serves it until the client leaves
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan ServerMessage, h.config.SendBuffer),
		closed: make(chan struct{}),
		topics: make(map[entity.Topic]bool),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.join(c, entity.TopicAll)
	h.logger.Info("Websocket client connected", zap.String("client_id", c.id))

	go h.writePump(c)
	h.readPump(c)
}

// Connections returns the number of open connections
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client
func (h *Handler) CloseAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
		_ = c.conn.Close()
	}
}

func (h *Handler) readPump(c *client) {
	defer h.disconnect(c)

	c.conn.SetReadLimit(h.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Websocket read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		h.handleMessage(c, msg)
	}
}

func (h *Handler) handleMessage(c *client, msg ClientMessage) {
	topic, err := entity.ParseTopic(msg.Group)
	if err != nil {
		c.push(ServerMessage{Type: TypeError, Group: msg.Group, Error: err.Error()})
		return
	}

	switch msg.Action {
	case ActionJoin:
		h.join(c, topic)
	case ActionLeave:
		if topic == entity.TopicAll {
			c.push(ServerMessage{Type: TypeError, Group: msg.Group, Error: "cannot leave the All group"})
			return
		}
		h.leave(c, topic)
	default:
		c.push(ServerMessage{Type: TypeError, Group: msg.Group, Error: fmt.Sprintf("unknown action %q", msg.Action)})
		return
	}
	c.push(ServerMessage{Type: TypeAck, Group: topic.String()})
}

func (h *Handler) join(c *client, topic entity.Topic) {
	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()
	h.transport.Subscribe(topic, c)
}

func (h *Handler) leave(c *client, topic entity.Topic) {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
	h.transport.Unsubscribe(topic, c)
}

func (h *Handler) disconnect(c *client) {
	c.mu.Lock()
	topics := make([]entity.Topic, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	c.topics = make(map[entity.Topic]bool)
	c.mu.Unlock()

	for _, t := range topics {
		h.transport.Unsubscribe(t, c)
	}

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.close()
	_ = c.conn.Close()
	h.logger.Info("Websocket client disconnected", zap.String("client_id", c.id))
}

func (h *Handler) writePump(c *client) {
	ticker := time.NewTicker(h.config.PongTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Warn("Websocket write failed", zap.String("client_id", c.id), zap.Error(err))
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-c.closed:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.config.WriteTimeout))
			_ = c.conn.Close()
			return
		}
	}
}

// client is one websocket connection acting as a hub subscriber
type client struct {
	id   string
	conn *websocket.Conn
	send chan ServerMessage

	closeOnce sync.Once
	closed    chan struct{}

	mu     sync.Mutex
	topics map[entity.Topic]bool
}

func (c *client) ID() string {
	return c.id
}

// Send queues evt without blocking; a full buffer counts as a failed delivery
func (c *client) Send(ctx context.Context, evt *event.Event) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: %w", workflow.ErrNotificationDelivery, errClientGone)
	default:
	}

	select {
	case c.send <- ServerMessage{Type: TypeEvent, Event: evt}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", workflow.ErrNotificationDelivery, ctx.Err())
	default:
		// Slow consumer; drop the connection so the client reconnects
		c.close()
		return fmt.Errorf("%w: client %s send buffer full", workflow.ErrNotificationDelivery, c.id)
	}
}

func (c *client) push(msg ServerMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Verify interface compliance
var _ port.Subscriber = (*client)(nil)
