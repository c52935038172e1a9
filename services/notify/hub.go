package notify

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Constants for hub configuration
const (
	MaxClientsPerUser     = 5
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPongTimeout  = 60 * time.Second
	WebSocketPingInterval = 30 * time.Second
	ClientSendBuffer      = 16
)

// client is one websocket connection belonging to a user
type client struct {
	userID uint
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans notification payloads out to a user's open websocket
// connections. When the user has no connection the payload falls back to
// the operational log, so delivery never fails the caller.
type Hub struct {
	mu       sync.RWMutex
	clients  map[uint][]*client
	upgrader websocket.Upgrader
	fallback *LogNotifier
}

// NewHub creates a websocket notification hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[uint][]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS handled at the router level
			},
		},
		fallback: NewLogNotifier(),
	}
}

// Send implements Notifier. The payload is serialized once and queued to
// every open connection of the target user.
func (h *Hub) Send(payload Payload) error {
	h.mu.RLock()
	conns := h.clients[payload.UserID]
	h.mu.RUnlock()

	if len(conns) == 0 {
		return h.fallback.Send(payload)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	for _, c := range conns {
		select {
		case c.send <- data:
		default:
			// Slow consumer: drop the message rather than block delivery
			log.Printf("Dropping notification for user %d: send buffer full", payload.UserID)
		}
	}
	return nil
}

// HandleConnection upgrades an HTTP request to a websocket and registers
// it for the given user until the connection closes.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, userID uint) error {
	h.mu.RLock()
	existing := len(h.clients[userID])
	h.mu.RUnlock()

	if existing >= MaxClientsPerUser {
		return websocket.ErrBadHandshake
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, ClientSendBuffer),
	}

	h.mu.Lock()
	h.clients[userID] = append(h.clients[userID], c)
	h.mu.Unlock()

	log.Printf("WebSocket client connected for user %d", userID)

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// unregister removes a client and closes its connection
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	conns := h.clients[c.userID]
	for i, other := range conns {
		if other == c {
			h.clients[c.userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.clients[c.userID]) == 0 {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	// The send channel is left open on purpose: a concurrent Send holding a
	// stale client list must not panic. writePump exits on its next failed
	// write against the closed connection.
	c.conn.Close()
}

// writePump pushes queued messages and keepalive pings to one connection
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(WebSocketPingInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client messages to process pongs and detect closes
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for user %d: %v", c.userID, err)
			}
			return
		}
	}
}
