// Package notify delivers edit session alerts to browsers over WebSockets
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Per connection send buffer
	sendBufferSize = 64
)

// Message is the envelope of everything written to a WebSocket
type Message struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Connection is one browser subscribed to one edit session
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	hub       *Hub

	registered chan struct{}
}

// sessionMessage is either a payload for a session or, when connection is
// set, the registration of a new subscriber. Both share one queue so a
// subscriber sees exactly the payloads published after it was attached.
type sessionMessage struct {
	sessionID  string
	payload    []byte
	connection *Connection
}

// Hub fans session messages out to the connections subscribed to them.
// All connection bookkeeping happens on the run goroutine.
type Hub struct {
	connections map[*Connection]bool
	sessions    map[string]map[*Connection]bool

	broadcast    chan sessionMessage
	unregister   chan *Connection
	closeSession chan string
	stop         chan struct{}
	done         chan struct{}

	pingPeriod time.Duration
	pongWait   time.Duration
	logger     *slog.Logger

	// count mirrors len(connections) for readers outside the run loop
	mutex sync.RWMutex
	count int

	stopOnce sync.Once
}

// NewHub creates a hub. Call Run to start it.
func NewHub(pingPeriod, pongWait time.Duration, logger *slog.Logger) *Hub {
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	if pingPeriod <= 0 || pingPeriod >= pongWait {
		pingPeriod = (pongWait * 9) / 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections:  make(map[*Connection]bool),
		sessions:     make(map[string]map[*Connection]bool),
		broadcast:    make(chan sessionMessage, 256),
		unregister:   make(chan *Connection),
		closeSession: make(chan string, 16),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		pingPeriod:   pingPeriod,
		pongWait:     pongWait,
		logger:       logger,
	}
}

// Run processes hub events until ctx is cancelled or Shutdown is called
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.stop:
			h.closeAll()
			return

		case message := <-h.broadcast:
			if message.connection != nil {
				h.add(message.connection)
			} else {
				h.fanOut(message)
			}

		case connection := <-h.unregister:
			h.remove(connection)

		case sessionID := <-h.closeSession:
			for connection := range h.sessions[sessionID] {
				h.remove(connection)
			}
		}
	}
}

func (h *Hub) add(connection *Connection) {
	h.connections[connection] = true
	if h.sessions[connection.SessionID] == nil {
		h.sessions[connection.SessionID] = make(map[*Connection]bool)
	}
	h.sessions[connection.SessionID][connection] = true
	h.setCount()
	close(connection.registered)

	h.logger.Debug("websocket connection registered",
		"session_id", connection.SessionID, "total", len(h.connections))
}

func (h *Hub) fanOut(message sessionMessage) {
	for connection := range h.sessions[message.sessionID] {
		select {
		case connection.Send <- message.payload:
		default:
			// slow consumer
			h.remove(connection)
		}
	}
}

// Publish queues a payload for the connections of a session without blocking.
// It reports false when the hub is saturated.
func (h *Hub) Publish(sessionID string, payload []byte) bool {
	select {
	case h.broadcast <- sessionMessage{sessionID: sessionID, payload: payload}:
		return true
	default:
		return false
	}
}

// CloseSession disconnects every connection of a session
func (h *Hub) CloseSession(sessionID string) {
	select {
	case h.closeSession <- sessionID:
	default:
		h.logger.Warn("websocket close queue full", "session_id", sessionID)
	}
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Shutdown stops the hub and closes every connection
func (h *Hub) Shutdown(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stop) })
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach registers a WebSocket connection for a session, queues the initial
// messages and starts its pumps
func (h *Hub) Attach(sessionID string, conn *websocket.Conn, initial [][]byte) *Connection {
	connection := &Connection{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Conn:       conn,
		Send:       make(chan []byte, sendBufferSize+len(initial)),
		hub:        h,
		registered: make(chan struct{}),
	}
	for _, payload := range initial {
		connection.Send <- payload
	}

	select {
	case h.broadcast <- sessionMessage{sessionID: sessionID, connection: connection}:
	case <-h.done:
		conn.Close()
		return connection
	}
	select {
	case <-connection.registered:
	case <-h.done:
		conn.Close()
		return connection
	}

	go connection.writePump()
	go connection.readPump()
	return connection
}

func (h *Hub) remove(connection *Connection) {
	if _, ok := h.connections[connection]; !ok {
		return
	}
	delete(h.connections, connection)
	close(connection.Send)

	if conns, exists := h.sessions[connection.SessionID]; exists {
		delete(conns, connection)
		if len(conns) == 0 {
			delete(h.sessions, connection.SessionID)
		}
	}
	h.setCount()

	h.logger.Debug("websocket connection unregistered",
		"session_id", connection.SessionID, "total", len(h.connections))
}

func (h *Hub) closeAll() {
	shutdown, err := json.Marshal(&Message{
		Type:      "server_shutdown",
		Data:      "Server is shutting down",
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Error("failed to marshal shutdown message", "error", err)
	}

	for connection := range h.connections {
		select {
		case connection.Send <- shutdown:
		default:
		}
		h.remove(connection)
	}
	h.logger.Info("websocket hub stopped")
}

func (h *Hub) setCount() {
	h.mutex.Lock()
	h.count = len(h.connections)
	h.mutex.Unlock()
}

// readPump drains the peer until it goes away. Browsers only send pongs
// and pings; any other frame is ignored.
func (c *Connection) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", "session_id", c.SessionID, "error", err)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
