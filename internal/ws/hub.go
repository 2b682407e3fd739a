package ws

import (
	"context"
	"time"

	"peer-chat-app/backend/internal/chat"
	"peer-chat-app/backend/pkg/logger"
	"peer-chat-app/backend/shared/observability"
)

// Hub owns the set of connected clients and tears their registry state down
// on disconnect. All registration goes through its channels so a disconnect
// can never race its own join.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}

	registry *chat.Registry
	router   *chat.Router
	history  chat.HistoryStore
	presence *chat.Presence
	metrics  *observability.ChatMetrics
	log      *logger.Logger

	presenceRefresh time.Duration
}

// NewHub creates a hub wired to the chat core. presence and metrics may be nil.
func NewHub(registry *chat.Registry, router *chat.Router, history chat.HistoryStore,
	presence *chat.Presence, metrics *observability.ChatMetrics, log *logger.Logger) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		shutdown:        make(chan struct{}),
		registry:        registry,
		router:          router,
		history:         history,
		presence:        presence,
		metrics:         metrics,
		log:             log,
		presenceRefresh: time.Minute,
	}
}

// Run processes client registration until Stop is called. Must run in its
// own goroutine.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.presenceRefresh)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			if h.metrics != nil {
				h.metrics.ActiveSessions.Inc()
			}
			h.markOnline(client.Participant())
			h.log.Info("client registered",
				"session_id", client.SessionID(),
				"participant", string(client.Participant()),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
				if h.metrics != nil {
					h.metrics.ActiveSessions.Dec()
				}

				// Membership must not outlive the connection.
				h.registry.Leave(client)

				if !h.hasParticipant(client.Participant()) {
					h.markOffline(client.Participant())
				}
				h.log.Info("client unregistered", "session_id", client.SessionID())
			}

		case <-ticker.C:
			// Keep presence markers alive while connections are healthy.
			for client := range h.clients {
				h.markOnline(client.Participant())
			}

		case <-h.shutdown:
			for client := range h.clients {
				delete(h.clients, client)
				client.closeSend()
				h.registry.Leave(client)
				h.markOffline(client.Participant())
			}
			return
		}
	}
}

// Stop disconnects all clients and ends the Run loop.
func (h *Hub) Stop() {
	close(h.shutdown)
}

// hasParticipant reports whether any remaining client is bound to the
// participant. Only called from the Run goroutine.
func (h *Hub) hasParticipant(p chat.ParticipantID) bool {
	for client := range h.clients {
		if client.Participant() == p {
			return true
		}
	}
	return false
}

func (h *Hub) markOnline(p chat.ParticipantID) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.presence.SetOnline(ctx, p); err != nil {
		h.log.Warn("presence update failed", "participant", string(p), "error", err.Error())
	}
}

func (h *Hub) markOffline(p chat.ParticipantID) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.presence.SetOffline(ctx, p); err != nil {
		h.log.Warn("presence removal failed", "participant", string(p), "error", err.Error())
	}
}
