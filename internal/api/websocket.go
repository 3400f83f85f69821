package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"forex-signal-engine/internal/events"
	"forex-signal-engine/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSClient represents a WebSocket client
type WSClient struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *WSHub
	symbols map[string]bool // empty means every symbol
}

func (c *WSClient) wants(ev events.Event) bool {
	return len(c.symbols) == 0 || ev.Symbol == "" || c.symbols[ev.Symbol]
}

type outbound struct {
	event events.Event
	data  []byte
}

// WSHub fans bus events out to connected websocket clients
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan outbound
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}
	logger     *logging.Logger
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan outbound, 1024),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
		logger:     logging.WithComponent("websocket"),
	}
}

// Run dispatches registrations and broadcasts until ctx is cancelled
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.event) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastEvent queues an event for every interested client. Events are dropped when the
// queue is full so publishers never block.
func (h *WSHub) BroadcastEvent(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal websocket event", "type", ev.Type)
		return
	}
	select {
	case h.broadcast <- outbound{event: ev, data: data}:
	default:
		h.logger.Warn("Websocket broadcast queue full, dropping event", "type", ev.Type)
	}
}

// Attach forwards every bus event to the hub
func (h *WSHub) Attach(bus *events.EventBus) {
	bus.SubscribeAll(h.BroadcastEvent)
}

// ClientCount returns the number of connected clients
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection. ?symbols=EURUSD,XAUUSD limits symbol events.
// GET /ws
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &WSClient{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     s.hub,
		symbols: parseSymbols(c.Query("symbols")),
	}
	welcome, _ := json.Marshal(events.Event{
		Type:      "CONNECTED",
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"symbols": c.Query("symbols")},
	})
	client.send <- welcome

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func parseSymbols(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out[s] = true
		}
	}
	return out
}

// readPump discards client messages and detects disconnects
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
				c.hub.logger.Debug("WebSocket closed unexpectedly", "error", err.Error())
			}
			return
		}
	}
}

// writePump writes queued messages and keeps the connection alive
func (c *WSClient) writePump() {
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
