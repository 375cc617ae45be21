package websocket

import (
	"encoding/json"
	"sync"

	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// Hub maintains the set of active dashboard clients and fans out envelopes to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Envelopes to deliver
	broadcast chan types.Envelope

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex to protect clients map
	mu sync.RWMutex

	logger zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan types.Envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger.With().Str("component", "hub").Logger(),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketConnections.Set(float64(total))
			h.logger.Info().
				Str("client_id", client.id).
				Str("call_id", client.callID).
				Int("total_clients", total).
				Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info().
					Str("client_id", client.id).
					Int("total_clients", len(h.clients)).
					Msg("client disconnected")
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketConnections.Set(float64(total))

		case env := <-h.broadcast:
			data, err := json.Marshal(env)
			if err != nil {
				h.logger.Error().Err(err).Str("type", string(env.Type)).Msg("failed to marshal envelope")
				continue
			}
			h.deliver(env.CallID, data)
		}
	}
}

// Broadcast queues env for delivery. It never blocks the caller: when the
// queue is full the envelope is dropped.
func (h *Hub) Broadcast(env types.Envelope) {
	select {
	case h.broadcast <- env:
	default:
		h.logger.Warn().Str("type", string(env.Type)).Str("call_id", env.CallID).Msg("broadcast queue full, dropping envelope")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver sends data to every client subscribed to callID. An empty callID
// addresses every client.
func (h *Hub) deliver(callID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.Subscribed(callID) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client's send buffer is full, close and remove it
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn().
				Str("client_id", client.id).
				Msg("client send buffer full, closing connection")
		}
	}
	metrics.WebSocketConnections.Set(float64(len(h.clients)))
}
