package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iamconsole/backend-go/internal/models"
)

// MessageTypeAlert tags alert messages on the WebSocket
const MessageTypeAlert = "alert"

// AlertObserver records dispatched alerts, typically as metrics
type AlertObserver interface {
	ObserveAlert(level string)
}

// Options configures a Dispatcher
type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
	Backlog         int
	AllowedOrigins  []string
	Logger          *slog.Logger
	Observer        AlertObserver
}

// Dispatcher records alerts per edit session and pushes them to the
// WebSocket subscribers of that session. Dispatch never blocks on browsers.
type Dispatcher struct {
	hub      *Hub
	upgrader websocket.Upgrader
	limit    int
	logger   *slog.Logger
	observer AlertObserver

	// mutex also orders hub publishes against subscriber attachment
	mutex     sync.RWMutex
	backlog   map[string][]models.Alert
	forgotten map[string]time.Time
}

// forgottenTTL bounds how long a closed session's late alerts are dropped.
// Tests and submits in flight finish well within it.
const forgottenTTL = 10 * time.Minute

// NewDispatcher creates a dispatcher on top of a running hub
func NewDispatcher(hub *Hub, opts Options) *Dispatcher {
	if opts.Backlog <= 0 {
		opts.Backlog = 50
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	origins := make(map[string]bool, len(opts.AllowedOrigins))
	allowAll := false
	for _, origin := range opts.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		origins[origin] = true
	}

	return &Dispatcher{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowAll || origins[origin]
			},
		},
		limit:    opts.Backlog,
		logger:   opts.Logger,
		observer: opts.Observer,
		backlog:   make(map[string][]models.Alert),
		forgotten: make(map[string]time.Time),
	}
}

// Dispatch records an alert for a session and pushes it to its subscribers
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, alert models.Alert) {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	payload, err := encodeAlert(sessionID, alert)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to marshal alert", "session_id", sessionID, "error", err)
		return
	}

	d.mutex.Lock()
	if _, gone := d.forgotten[sessionID]; gone {
		d.mutex.Unlock()
		d.logger.DebugContext(ctx, "alert for closed session dropped", "session_id", sessionID)
		return
	}
	alerts := append(d.backlog[sessionID], alert)
	if len(alerts) > d.limit {
		alerts = alerts[len(alerts)-d.limit:]
	}
	d.backlog[sessionID] = alerts
	published := d.hub.Publish(sessionID, payload)
	d.mutex.Unlock()

	if d.observer != nil {
		d.observer.ObserveAlert(string(alert.Level))
	}
	if !published {
		d.logger.WarnContext(ctx, "alert broadcast queue full", "session_id", sessionID)
	}
}

// Alerts returns the recorded alerts of a session, oldest first
func (d *Dispatcher) Alerts(sessionID string) []models.Alert {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	alerts := make([]models.Alert, len(d.backlog[sessionID]))
	copy(alerts, d.backlog[sessionID])
	return alerts
}

// Forget drops the backlog of a session and disconnects its subscribers.
// Alerts dispatched for the session afterwards are discarded.
func (d *Dispatcher) Forget(sessionID string) {
	now := time.Now()
	d.mutex.Lock()
	delete(d.backlog, sessionID)
	for id, at := range d.forgotten {
		if now.Sub(at) > forgottenTTL {
			delete(d.forgotten, id)
		}
	}
	d.forgotten[sessionID] = now
	d.mutex.Unlock()

	d.hub.CloseSession(sessionID)
}

// Subscribe upgrades the request to a WebSocket subscribed to a session.
// The session backlog is replayed first.
func (d *Dispatcher) Subscribe(c echo.Context, sessionID string) error {
	conn, err := d.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		d.logger.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		// the upgrader already wrote the error response
		return nil
	}

	// Replay and registration happen under the lock Dispatch publishes
	// under, so every alert reaches the socket exactly once
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var initial [][]byte
	for _, alert := range d.backlog[sessionID] {
		payload, err := encodeAlert(sessionID, alert)
		if err != nil {
			continue
		}
		initial = append(initial, payload)
	}

	d.hub.Attach(sessionID, conn, initial)
	return nil
}

func encodeAlert(sessionID string, alert models.Alert) ([]byte, error) {
	return json.Marshal(&Message{
		Type:      MessageTypeAlert,
		SessionID: sessionID,
		Data:      alert,
		Timestamp: alert.CreatedAt,
	})
}
