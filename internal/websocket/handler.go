package websocket

import (
	"net/http"

	"github.com/dennisdiepolder/monti/callmonitor/internal/config"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler upgrades dashboard connections. The optional callId query
// parameter limits the connection to one call.
type Handler struct {
	hub      *Hub
	config   *config.Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler that accepts the configured origins
func NewHandler(hub *Hub, cfg *config.Config, logger zerolog.Logger) *Handler {
	h := &Handler{
		hub:    hub,
		config: cfg,
		logger: logger.With().Str("component", "ws-handler").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.logger.Warn().Str("origin", origin).Msg("rejected websocket origin")
	return false
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, h.config, h.logger, r.URL.Query().Get("callId"))
	h.hub.register <- client
	client.Start()
}
