package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/drozhzhin-n-e/chatgpt-ui/internal/pubsub"
	"github.com/drozhzhin-n-e/chatgpt-ui/internal/store"
)

// Event stream message types.
const (
	EventSession  = "session"
	EventChats    = "chats"
	EventActiveID = "activeChatId"
	EventTheme    = "theme"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EventHub fans state-container updates out to connected views. A client
// whose send buffer is full misses the event; it will catch up on the next
// one, since every event carries the full current value.
type EventHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewEventHub(logger *slog.Logger) *EventHub {
	return &EventHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Run starts the hub's event loop.
func (h *EventHub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for all connected clients. Never blocks the
// caller: state mutation must not wait on slow views.
func (h *EventHub) Broadcast(eventType string, payload any) {
	data, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Warn("event encode failed", "type", eventType, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("event stream backlogged, dropping event", "type", eventType)
	}
}

// BindContainers subscribes the hub to the state containers so every change
// is pushed to the views.
func (h *EventHub) BindContainers(
	session *pubsub.Container[store.AuthState],
	chats *pubsub.Container[[]store.Chat],
	activeID *pubsub.Container[string],
	theme *pubsub.Container[string],
) {
	session.Subscribe(func(st store.AuthState) { h.Broadcast(EventSession, st) })
	chats.Subscribe(func(c []store.Chat) { h.Broadcast(EventChats, c) })
	activeID.Subscribe(func(id string) { h.Broadcast(EventActiveID, id) })
	theme.Subscribe(func(t string) { h.Broadcast(EventTheme, t) })
}

// WebSocketHandler upgrades the connection and registers it with the hub.
func (h *APIHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Localhost app; origin checks add nothing here
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.hub.register <- conn

	// Read loop exists only to detect disconnects; clients never send.
	go func() {
		defer func() {
			h.hub.unregister <- conn
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
