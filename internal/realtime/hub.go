// Package realtime streams fraud alert events to WebSocket subscribers.
//
// Events are emitted on alert creation only, never on review transitions.
// Delivery is best-effort: a subscriber that cannot keep up is dropped so
// the scoring path is never back-pressured by a slow dashboard.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nmoreau/sentra/internal/metrics"
)

// normalCloseCodes are WebSocket close codes that indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// AlertEvent is the wire payload pushed to subscribers when an alert is
// created.
type AlertEvent struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	RiskScore     float64   `json:"riskScore"`
	AlertType     string    `json:"alertType"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
}

// Subscription filters for a client. The zero value receives nothing; a
// fresh connection defaults to AllEvents until it sends its own filter.
type Subscription struct {
	AllEvents  bool     `json:"allEvents"`
	MinScore   float64  `json:"minScore"`   // Only alerts at or above this score
	AlertTypes []string `json:"alertTypes"` // Only these alert types
	UserIDs    []string `json:"userIds"`    // Only these users
}

// Client represents a WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// MaxClients is the maximum number of concurrent WebSocket connections.
const MaxClients = 10000

// Hub manages all WebSocket connections.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *AlertEvent
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int

	// Stats
	totalEvents  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *AlertEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("realtime hub shutting down, closing client connections")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send) // writePump sends CloseMessage on closed channel
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalClients.Add(1)
			if current := int64(len(h.clients)); current > h.peakClients.Load() {
				h.peakClients.Store(current)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("subscriber connected", "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("subscriber disconnected", "total", n)

		case event := <-h.broadcast:
			h.totalEvents.Add(1)
			payload := serialize(event)
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				if client.wants(event) {
					select {
					case client.send <- payload:
					default:
						slow = append(slow, client)
					}
				}
			}
			h.mu.RUnlock()
			// Remove slow clients under write lock
			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
						metrics.BroadcastDroppedTotal.Inc()
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// wants checks whether the event matches the client's subscription.
func (c *Client) wants(event *AlertEvent) bool {
	c.mu.RLock()
	sub := c.sub
	c.mu.RUnlock()

	if sub.AllEvents {
		return true
	}

	if sub.MinScore > 0 && event.RiskScore < sub.MinScore {
		return false
	}

	if len(sub.AlertTypes) > 0 {
		matched := false
		for _, t := range sub.AlertTypes {
			if t == event.AlertType {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(sub.UserIDs) > 0 {
		matched := false
		for _, id := range sub.UserIDs {
			if id == event.UserID {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	// A non-default subscription with no positive criteria still counts
	// as "everything matching the score floor".
	return sub.MinScore > 0 || len(sub.AlertTypes) > 0 || len(sub.UserIDs) > 0
}

func serialize(event *AlertEvent) []byte {
	data, _ := json.Marshal(event)
	return data
}

// Broadcast sends an alert event to all matching clients. A full broadcast
// channel drops the event rather than blocking the caller.
func (h *Hub) Broadcast(event *AlertEvent) {
	select {
	case h.broadcast <- event:
	default:
		metrics.BroadcastDroppedTotal.Inc()
		h.logger.Warn("broadcast channel full, dropping alert event",
			"transaction_id", event.TransactionID)
	}
}

// Stats returns hub statistics.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"connectedClients": len(h.clients),
		"totalEvents":      h.totalEvents.Load(),
		"totalClients":     h.totalClients.Load(),
		"peakClients":      h.peakClients.Load(),
	}
}

// HandleWebSocket upgrades HTTP to WebSocket.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true}, // Default: all alerts
	}

	select {
	case h.register <- client:
	case <-h.done:
		// Hub stopped between the check above and the send.
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from WebSocket (subscription updates, pings).
func (c *Client) readPump() {
	defer func() {
		// A stopped hub no longer drains unregister; don't block on it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

// writePump writes messages to WebSocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
