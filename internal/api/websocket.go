// Package api provides the HTTP and WebSocket surface of the pipeline.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// MessageType tags server-to-client WebSocket messages.
type MessageType string

const (
	MsgTypeSignal    MessageType = "signal"
	MsgTypeHeartbeat MessageType = "heartbeat"
)

// WSMessage is the envelope for every pushed message.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// wsClient is one connected subscriber. A client that cannot keep up with
// its send buffer is dropped rather than allowed to stall the hub.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans signal updates out to connected WebSocket clients.
type Hub struct {
	logger     *zap.Logger
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates the hub; call Run in a goroutine.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger.Named("ws"),
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

// Run processes registration and broadcast events until Close.
func (h *Hub) Run() {
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				_ = c.conn.Close()
			}
			h.clients = make(map[*wsClient]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client connected", zap.String("id", client.id))

		case client := <-h.unregister:
			h.dropClient(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*wsClient, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				select {
				case c.send <- msg:
				default:
					h.dropClient(c)
				}
			}

		case <-heartbeat.C:
			h.push(WSMessage{Type: MsgTypeHeartbeat, Timestamp: time.Now().Unix()})
		}
	}
}

// Close shuts the hub down and disconnects every client.
func (h *Hub) Close() {
	close(h.done)
}

// BroadcastSignal pushes a signal to every connected client.
func (h *Hub) BroadcastSignal(sig *types.Signal) {
	data, err := json.Marshal(sig)
	if err != nil {
		h.logger.Error("failed to marshal signal", zap.Error(err))
		return
	}
	h.push(WSMessage{Type: MsgTypeSignal, Data: data, Timestamp: time.Now().Unix()})
}

func (h *Hub) push(msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		// Dropping a broadcast under backpressure is acceptable; the next
		// cycle will publish fresh state anyway.
	}
}

func (h *Hub) dropClient(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		_ = c.conn.Close()
		h.logger.Debug("client disconnected", zap.String("id", c.id))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket upgrades the connection and attaches it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		_ = conn.Close()
		return
	}

	go client.writeLoop()
	go client.readLoop(s.hub)
}

func (c *wsClient) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readLoop drains client frames so pings and close messages are handled;
// inbound payloads are ignored, the API is push-only.
func (c *wsClient) readLoop(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
