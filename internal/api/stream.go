package api

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// outboundEvent pairs a marshaled event with the market it belongs to,
// so Run can apply each client's market filter before handing the
// frame to its send channel. MarketID is empty for global events
// (snapshots, global kill signals), which every client always gets.
type outboundEvent struct {
	marketID string
	data     []byte
}

// Hub manages WebSocket clients and broadcasts events to them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan outboundEvent
	mu         sync.RWMutex
	logger     *slog.Logger
}

// Client represents a connected WebSocket client. A client that has
// called SetMarketFilter only receives per-market events for the
// markets it named; it always receives global events regardless.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	filterMu sync.RWMutex
	markets  map[string]bool // nil/empty = no filter, receive everything
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outboundEvent, 256),
		logger:     logger.With("component", "ws-hub"),
	}
}

// Run starts the hub's main loop (should be called in a goroutine)
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("client connected", "count", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", "count", len(h.clients))

		case evt := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(evt.marketID) {
					continue
				}
				select {
				case client.send <- evt.data:
				default:
					// Client can't keep up, close it
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// wants reports whether the client's filter accepts an event for
// marketID. A global event (empty marketID) always passes.
func (c *Client) wants(marketID string) bool {
	if marketID == "" {
		return true
	}
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	if len(c.markets) == 0 {
		return true
	}
	return c.markets[marketID]
}

// SetMarketFilter narrows this client to only the named markets'
// per-market events; an empty list clears the filter.
func (c *Client) SetMarketFilter(marketIDs []string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	if len(marketIDs) == 0 {
		c.markets = nil
		return
	}
	c.markets = make(map[string]bool, len(marketIDs))
	for _, id := range marketIDs {
		c.markets[id] = true
	}
}

// BroadcastEvent sends an event to every client whose market filter
// accepts it.
func (h *Hub) BroadcastEvent(evt DashboardEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err)
		return
	}

	select {
	case h.broadcast <- outboundEvent{marketID: evt.MarketID, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping event")
	}
}

// BroadcastSnapshot sends a snapshot to all connected clients
func (h *Hub) BroadcastSnapshot(snapshot DashboardSnapshot) {
	evt := DashboardEvent{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Data:      snapshot,
	}
	h.BroadcastEvent(evt)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// writePump pumps messages from the hub to the websocket connection
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
				// Hub closed the channel
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

// readPump pumps messages from the websocket connection to the hub
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
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}
		c.handleClientMessage(raw)
	}
}

// clientFilterMsg is the only inbound message the dashboard accepts: a
// request to narrow this connection to a subset of markets' per-market
// events (fills, orders, positions). Global events always pass through
// regardless of this filter.
type clientFilterMsg struct {
	Markets []string `json:"markets"`
}

func (c *Client) handleClientMessage(raw []byte) {
	var msg clientFilterMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.hub.logger.Debug("ignoring unparsable dashboard client message", "error", err)
		return
	}
	c.SetMarketFilter(msg.Markets)
}

// NewClient creates a new WebSocket client and starts its pumps
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	client.hub.register <- client

	// Start pumps
	go client.writePump()
	go client.readPump()

	return client
}
