package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"face-attendance-go/internal/attendance"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Message is one server-sent event.
type Message struct {
	Event string
	Data  []byte
}

// Client is a single connected SSE client.
type Client chan Message

// Hub keeps track of the active clients and fans broadcasts out to them.
type Hub struct {
	clients    map[Client]bool
	broadcast  chan Message
	register   chan Client
	unregister chan Client
	done       chan struct{}

	mu sync.Mutex
}

// NewHub creates a hub. Run must be started before clients register.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 100),
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info("SSE hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.Info("SSE hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Infof("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			log.Debugf("Broadcasting %s to %d SSE clients", msg.Event, len(h.clients))
			for client := range h.clients {
				select {
				case client <- msg:
				default:
					log.Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for all clients. It drops the message when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// Notify broadcasts ev under its type. It implements attendance.Notifier.
func (h *Hub) Notify(_ context.Context, ev attendance.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	h.Broadcast(Message{Event: ev.Type, Data: data})
	return nil
}

// Handler streams hub messages to the requesting client.
func (h *Hub) Handler(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(Client, 10)
	if !h.Register(client) {
		c.Status(503)
		return
	}
	defer h.Unregister(client)

	c.Status(200)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent(msg.Event, string(msg.Data))
			return true
		}
	})
}
