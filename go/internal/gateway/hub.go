package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/tasktimer/go/internal/timer"
	"github.com/rs/zerolog/log"
)

// EventSink receives the display events of connected clients
type EventSink interface {
	SetDescription(ctx context.Context, text string) error
	FocusTime()
	BlurTime(ctx context.Context, text string) error
	Toggle(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Hub manages WebSocket display connections. It renders timer views to every
// connection and forwards their events to the sink.
type Hub struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config ConnectionConfig
	sink   EventSink

	broadcastCh chan []byte

	lastMu    sync.RWMutex
	lastFrame []byte
}

// Connection represents a WebSocket connection to a display
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	EventTimeout    time.Duration
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		EventTimeout:    10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewHub creates a new display connection hub
func NewHub(config ConnectionConfig) *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan []byte, 256),
	}
}

// SetSink sets the receiver of client events. It must be called before
// connections are accepted.
func (h *Hub) SetSink(sink EventSink) {
	h.sink = sink
}

// Start begins processing broadcast frames
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("display hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("display hub shutting down")
			h.closeAll()
			return
		case frame := <-h.broadcastCh:
			h.handleBroadcast(frame)
		}
	}
}

// Render implements timer.Renderer. It never blocks: when the broadcast
// queue is full the frame is dropped, the next tick supersedes it anyway.
func (h *Hub) Render(view timer.View) {
	data, err := json.Marshal(Frame{Type: FrameTypeView, Timestamp: time.Now(), View: &view})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal view frame")
		return
	}

	h.lastMu.Lock()
	h.lastFrame = data
	h.lastMu.Unlock()

	select {
	case h.broadcastCh <- data:
	default:
		log.Warn().Msg("broadcast channel full, dropping frame")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (h *Hub) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 64),
		Hub:         h,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	// new displays get the latest frame right away
	h.lastMu.RLock()
	last := h.lastFrame
	h.lastMu.RUnlock()
	if last != nil {
		connection.Send <- last
	}

	h.register(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Msg("WebSocket connection established")

	return nil
}

func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(h.connections)).
		Msg("connection registered")
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.connections[conn]; exists {
		delete(h.connections, conn)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Msg("connection unregistered")
	}
}

func (h *Hub) handleBroadcast(frame []byte) {
	// unregister closes Send under the write lock, so sends happen under the read lock
	h.mu.RLock()
	var slow []*Connection
	for conn := range h.connections {
		select {
		case conn.Send <- frame:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		h.unregister(conn)
		conn.Conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.connections))
	for conn := range h.connections {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		h.unregister(conn)
	}
}

// ConnectionCount returns the number of connected displays
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Dispatch applies a client message to the sink
func (h *Hub) Dispatch(ctx context.Context, msg ClientMessage) error {
	if h.sink == nil {
		return fmt.Errorf("no event sink configured")
	}
	switch msg.Type {
	case MessageDescriptionChanged:
		return h.sink.SetDescription(ctx, msg.Text)
	case MessageTimeFocused:
		h.sink.FocusTime()
		return nil
	case MessageTimeBlurred:
		return h.sink.BlurTime(ctx, msg.Text)
	case MessageToggle:
		return h.sink.Toggle(ctx)
	case MessageReset:
		return h.sink.Reset(ctx)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading display events from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ReadTimeout))
	}
}

// handleClientMessage processes a display event received from the client
func (c *Connection) handleClientMessage(message []byte) {
	msg, err := ParseClientMessage(message)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("invalid client message")
		c.sendError(err)
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("message_type", string(msg.Type)).
		Msg("received client message")

	ctx, cancel := context.WithTimeout(context.Background(), c.Hub.config.EventTimeout)
	defer cancel()
	if err := c.Hub.Dispatch(ctx, msg); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Str("message_type", string(msg.Type)).Msg("failed to apply client message")
		c.sendError(err)
	}
}

func (c *Connection) sendError(err error) {
	data, mErr := json.Marshal(Frame{Type: FrameTypeError, Timestamp: time.Now(), Error: err.Error()})
	if mErr != nil {
		return
	}
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if !c.Hub.connections[c] {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}
