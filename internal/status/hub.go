// Package status implements the optional observability host (C9): a
// read-only HTTP + WebSocket surface that broadcasts tick events. It is
// adapted from the dashboard's Hub/Client broadcast mechanism, stripped of
// every PnL/risk/scanner-specific field — this module has no analogue of
// those concepts.
package status

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ladder-mm/internal/tickloop"
)

// Hub manages WebSocket clients and broadcasts tick events to them.
type Hub struct {
	clients    map[*Client]bool
	clientCount atomic.Int64
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	logger     *slog.Logger
}

// ClientCount returns the number of currently connected clients, safe to
// call from any goroutine.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// Client represents a connected WebSocket client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		logger:     logger.With("component", "status-hub"),
	}
}

// Run starts the hub's main loop; call it in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.clientCount.Store(int64(len(h.clients)))
			h.logger.Info("client connected", "count", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientCount.Store(int64(len(h.clients)))
			h.logger.Info("client disconnected", "count", len(h.clients))

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// wireEvent is the JSON shape broadcast to connected clients.
type wireEvent struct {
	WorkerID       string    `json:"workerId"`
	Timestamp      time.Time `json:"timestamp"`
	State          string    `json:"state"`
	RefPrice       string    `json:"refPrice"`
	ProposedCount  int       `json:"proposedCount"`
	PlacedCount    int       `json:"placedCount"`
	CancelledCount int       `json:"cancelledCount"`
	Err            string    `json:"err,omitempty"`
}

// BroadcastTick sends a tick event to all connected clients.
func (h *Hub) BroadcastTick(event tickloop.TickEvent) {
	wire := wireEvent{
		WorkerID:       event.WorkerID,
		Timestamp:      event.Timestamp,
		State:          event.State.String(),
		RefPrice:       event.RefPrice.String(),
		ProposedCount:  event.ProposedCount,
		PlacedCount:    event.PlacedCount,
		CancelledCount: event.CancelledCount,
		Err:            event.Err,
	}

	data, err := json.Marshal(wire)
	if err != nil {
		h.logger.Error("failed to marshal tick event", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping tick event")
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}
		// Status feed is read-only; client messages are ignored.
	}
}

// NewClient registers a connection with the hub and starts its pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256)}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return client
}
