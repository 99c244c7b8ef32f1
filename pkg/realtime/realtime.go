// Package realtime pushes session events to WebSocket subscribers. It runs
// on its own HTTP listener because the gorilla upgrader needs a net/http
// ResponseWriter.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Auth happens via the signed token, not the Origin header.
		return true
	},
}

// Event is one session event pushed to subscribers.
type Event struct {
	Session   string      `json:"session"`
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// TokenValidator checks the upgrade token and returns the session the
// subscriber is scoped to. An empty session subscribes to all sessions.
type TokenValidator func(token string) (session string, err error)

type subscriber struct {
	conn    *websocket.Conn
	send    chan []byte
	session string
	hub     *Hub
}

// Hub manages WebSocket subscribers and fans session events out to them.
type Hub struct {
	validate   TokenValidator
	clients    map[*subscriber]bool
	broadcast  chan Event
	register   chan *subscriber
	unregister chan *subscriber
	mu         sync.RWMutex
}

func NewHub(validate TokenValidator) *Hub {
	return &Hub{
		validate:   validate,
		clients:    make(map[*subscriber]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
	}
}

// Run owns the subscriber set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Session(client.session).Debug("Realtime subscriber connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			log.Session(client.session).Debug("Realtime subscriber disconnected")

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if client.session != "" && client.session != event.Session {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Subscriber too slow, drop it.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Emit queues one event for delivery. It never blocks; when the queue is
// full the event is dropped.
func (h *Hub) Emit(session string, event string, data interface{}) {
	evt := Event{
		Session:   session,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	select {
	case h.broadcast <- evt:
	default:
		log.Session(session).Warn("Realtime queue full, dropping event " + event)
	}
}

// SubscriberCount reports the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request after validating the token carried
// in ?token= or the Authorization header.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	session, err := h.validate(token)
	if err != nil {
		log.Print(nil).WithError(err).Warn("Rejected realtime subscriber")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Session(session).WithError(err).Error("WebSocket upgrade failed")
		return
	}

	client := &subscriber{
		conn:    conn,
		send:    make(chan []byte, 256),
		session: session,
		hub:     h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *subscriber) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *subscriber) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
