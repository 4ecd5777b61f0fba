package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GuardainDev/opinion-trade-orderbook/domain/orderbook"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type depthUpdate struct {
	Type     string            `json:"type"`
	MarketID string            `json:"marketId"`
	Asks     []orderbook.Level `json:"asks"`
	Bids     []orderbook.Level `json:"bids"`
	At       int64             `json:"at"`
}

type subscribeRequest struct {
	Op      string   `json:"op"`
	Markets []string `json:"markets"`
}

// Hub fans depth snapshots out to websocket subscribers. It implements
// service.DepthPublisher; a slow client is dropped rather than allowed to
// stall the matching path.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	log        *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debugw("ws client connected", "remote", c.id, "total", n)
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debugw("ws client disconnected", "remote", c.id, "total", n)
		}
	}
}

// PublishDepth sends a depth snapshot to every client subscribed to the
// market. Unsubscribed clients and clients with a full buffer are skipped.
func (h *Hub) PublishDepth(marketID string, asks, bids []orderbook.Level) {
	msg, err := json.Marshal(depthUpdate{
		Type:     "depth",
		MarketID: marketID,
		Asks:     asks,
		Bids:     bids,
		At:       time.Now().UnixMilli(),
	})
	if err != nil {
		h.log.Errorw("depth marshal failed", "market", marketID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(marketID) {
			continue
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu sync.RWMutex
	subs   map[string]bool
}

func (c *wsClient) subscribed(marketID string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs[marketID]
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		c.subsMu.Lock()
		switch req.Op {
		case "subscribe":
			for _, m := range req.Markets {
				c.subs[m] = true
			}
		case "unsubscribe":
			for _, m := range req.Markets {
				delete(c.subs, m)
			}
		}
		c.subsMu.Unlock()
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		id:   conn.RemoteAddr().String(),
		subs: make(map[string]bool),
	}
	s.hub.register <- c

	go c.writePump()
	go c.readPump()
}
