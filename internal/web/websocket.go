package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roasbeef/shousai/internal/coordinator"
)

// WebSocket message types for real-time updates.
const (
	WSMsgTypeClusterUpdate = "cluster_update"
	WSMsgTypeStatus        = "status"
	WSMsgTypePong          = "pong"
	WSMsgTypeConnected     = "connected"
	WSMsgTypeError         = "error"
)

// statusInterval is how often the hub pushes an aggregate status frame
// to every connected client.
const statusInterval = 15 * time.Second

// WSMessage represents a WebSocket message sent to clients.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub maintains the set of active WebSocket clients and relays record
// updates from the coordinator to all of them.
type Hub struct {
	// Registered clients.
	clients map[*WSClient]struct{}

	// Register requests from clients.
	register chan *WSClient

	// Unregister requests from clients.
	unregister chan *WSClient

	// Broadcast messages to all clients.
	broadcast chan *WSMessage

	// Coordinator feeding record updates.
	coord *coordinator.Coordinator

	// Subscription handle on the coordinator.
	subToken string
	updates  <-chan coordinator.RecordUpdate

	log *slog.Logger

	// Mutex for thread-safe access.
	mu sync.RWMutex

	// Context for shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new WebSocket hub subscribed to the coordinator's
// record updates.
func NewHub(coord *coordinator.Coordinator, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}

	token, updates := coord.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*WSClient]struct{}),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan *WSMessage, 256),
		coord:      coord,
		subToken:   token,
		updates:    updates,
		log:        log.With("component", "ws"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	// Start background ticker for periodic status frames.
	go h.runPeriodicStatus()

	for {
		select {
		case <-h.ctx.Done():
			// Clean up all clients on shutdown.
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*WSClient]struct{})
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("WebSocket client registered",
				"total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("WebSocket client unregistered",
				"total", total)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				client.Send(msg)
			}
			h.mu.RUnlock()

		case upd, ok := <-h.updates:
			if !ok {
				// The coordinator closed the subscription;
				// a nil channel blocks this case forever.
				h.updates = nil
				continue
			}
			h.broadcastClusterUpdate(upd)
		}
	}
}

// broadcastClusterUpdate fans a record update out to every client,
// paired with its derived detail state.
func (h *Hub) broadcastClusterUpdate(upd coordinator.RecordUpdate) {
	msg := &WSMessage{
		Type: WSMsgTypeClusterUpdate,
		Payload: ClusterView{
			Cluster: upd.Cluster,
			State:   h.coord.DetailState(h.ctx, upd.Cluster),
		},
	}

	h.mu.RLock()
	for client := range h.clients {
		client.Send(msg)
	}
	h.mu.RUnlock()
}

// runPeriodicStatus sends periodic status frames to all connected
// clients.
func (h *Hub) runPeriodicStatus() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.BroadcastToAll(&WSMessage{
				Type: WSMsgTypeStatus,
				Payload: map[string]any{
					"records":     len(h.coord.Records()),
					"activePolls": h.coord.ActivePolls(),
					"clients":     h.ClientCount(),
					"time": time.Now().UTC().
						Format(time.RFC3339),
				},
			})
		}
	}
}

// Stop shuts down the hub.
func (h *Hub) Stop() {
	h.coord.Unsubscribe(h.subToken)
	h.cancel()
}

// BroadcastToAll sends a message to all connected clients.
func (h *Hub) BroadcastToAll(msg *WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("Broadcast buffer full, dropping message",
			"type", msg.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// upgrader specifies parameters for upgrading an HTTP connection to
// WebSocket.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Check origin to prevent CSRF attacks.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Allow if no origin header (same-origin requests).
		if origin == "" {
			return true
		}
		// Allow same-origin requests.
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// handleWebSocket handles WebSocket connections at /ws.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "WebSocket not available",
			http.StatusServiceUnavailable)
		return
	}

	// Upgrade HTTP connection to WebSocket.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := NewWSClient(s.hub, conn)

	// Register client with hub.
	s.hub.register <- client

	// Send connection confirmation.
	client.Send(&WSMessage{
		Type: WSMsgTypeConnected,
		Payload: map[string]any{
			"time": time.Now().UTC().Format(time.RFC3339),
		},
	})

	// Start read and write pumps.
	go client.writePump()
	go client.readPump()
}

// handleIncomingMessage processes messages received from WebSocket
// clients.
func (h *Hub) handleIncomingMessage(client *WSClient, messageType int,
	data []byte) {

	if messageType != websocket.TextMessage {
		return
	}

	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	}

	if err := json.Unmarshal(data, &msg); err != nil {
		client.Send(&WSMessage{
			Type: WSMsgTypeError,
			Payload: map[string]any{
				"message": "Invalid message format",
			},
		})
		return
	}

	switch msg.Type {
	case "ping":
		// Respond to ping with pong.
		client.Send(&WSMessage{
			Type: WSMsgTypePong,
			Payload: map[string]any{
				"time": time.Now().UTC().Format(time.RFC3339),
			},
		})

	default:
		// Unknown message type.
		client.Send(&WSMessage{
			Type: WSMsgTypeError,
			Payload: map[string]any{
				"message": "Unknown message type: " + msg.Type,
			},
		})
	}
}
