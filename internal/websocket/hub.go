// Package websocket provides WebSocket connection management and message broadcasting.
package websocket

import (
	"context"
	"log"
	"sort"
	"sync"
)

// envelope is a broadcast message tagged with the property it concerns.
// An empty propertyID reaches every client.
type envelope struct {
	propertyID string
	data       []byte
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for clients
	broadcast chan envelope

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe client access
	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main event loop and returns when ctx is done.
// This should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected (total: %d)", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected (total: %d)", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.Wants(msg.propertyID) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Client send buffer full, close connection
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to every client interested in propertyID.
func (h *Hub) Broadcast(propertyID string, message []byte) {
	select {
	case h.broadcast <- envelope{propertyID: propertyID, data: message}:
	default:
		log.Println("Broadcast channel full, dropping message")
	}
}

// drop removes and closes a client. h.mu must be held.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	client.closed = true
	close(client.send)
}

// Reply queues data for a single client, as a response to one of its
// commands. It reports false if the client is closed or its buffer is full.
func (h *Hub) Reply(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.closed {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client represents a WebSocket client connection. A client with no
// subscriptions receives every property's events.
type Client struct {
	hub  *Hub
	send chan []byte

	// closed is guarded by the hub's mutex.
	closed bool

	mu         sync.RWMutex
	properties map[string]bool
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, 256),
		properties: make(map[string]bool),
	}
}

// Send returns the send channel for the client.
func (c *Client) Send() chan []byte {
	return c.send
}

// Subscribe limits the client to events of the given properties.
func (c *Client) Subscribe(propertyIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range propertyIDs {
		c.properties[id] = true
	}
}

// Unsubscribe removes property subscriptions.
func (c *Client) Unsubscribe(propertyIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range propertyIDs {
		delete(c.properties, id)
	}
}

// Subscriptions returns the subscribed property IDs in sorted order.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.properties))
	for id := range c.properties {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wants reports whether an event for propertyID should reach the client.
func (c *Client) Wants(propertyID string) bool {
	if propertyID == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.properties) == 0 || c.properties[propertyID]
}
