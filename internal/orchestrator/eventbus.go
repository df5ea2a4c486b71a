package orchestrator

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// ProgressEvent is one live update broadcast while an evaluation run is
// in flight.
type ProgressEvent struct {
	Type         string `json:"type"` // run_started, judgment, run_complete, run_aborted
	EvaluationID string `json:"evaluation_id"`
	ScenarioID   string `json:"scenario_id,omitempty"`
	Decision     string `json:"decision,omitempty"`
	Completed    int    `json:"completed"`
	Total        int    `json:"total"`
}

func newUpgrader(allowAllOrigins bool) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowAllOrigins {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return strings.Contains(origin, r.Host)
		},
	}
}

// EventBus broadcasts live evaluation progress to connected WebSocket
// clients, supplementing the CLI-first surface with a hook a dashboard
// or monitoring tool can attach to.
type EventBus struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventBus builds an EventBus.
func NewEventBus(logger *slog.Logger, allowAllOrigins bool) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		clients:  make(map[*websocket.Conn]bool),
		upgrader: newUpgrader(allowAllOrigins),
		logger:   logger.With("component", "orchestrator.EventBus"),
	}
}

// HandleWebSocket upgrades an HTTP connection to a live progress feed.
func (b *EventBus) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	b.mu.Lock()
	b.clients[conn] = true
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			b.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Publish broadcasts one progress event to every connected client.
func (b *EventBus) Publish(evt ProgressEvent) {
	msg, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("failed to marshal progress event", "error", err)
		return
	}

	b.mu.RLock()
	var dead []*websocket.Conn
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			dead = append(dead, conn)
		}
	}
	b.mu.RUnlock()

	if len(dead) > 0 {
		b.mu.Lock()
		for _, c := range dead {
			delete(b.clients, c)
			_ = c.Close()
		}
		b.mu.Unlock()
	}
}

// ClientCount reports how many live listeners are attached.
func (b *EventBus) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		_ = conn.Close()
		delete(b.clients, conn)
	}
}
