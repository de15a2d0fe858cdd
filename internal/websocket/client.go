package websocket

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// DefaultSendBuffer is the per-connection outbound queue length.
	DefaultSendBuffer = 256
)

var ErrClientClosed = errors.New("client closed")

// ConnState is the lifecycle of one socket.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the part of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one open socket. Its identity binding (user and session) is
// owned by the Registry and only changes under the registry lock.
type Client struct {
	id   string
	hub  *Hub
	conn Conn
	send chan []byte

	state atomic.Int32

	mu        sync.RWMutex
	userID    string
	sessionID string
	observing string

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps conn. observe, when set, makes the client receive the
// session's broadcasts before it registers any user.
func NewClient(hub *Hub, conn Conn, observe string) *Client {
	size := DefaultSendBuffer
	if hub != nil && hub.cfg.SendBuffer > 0 {
		size = hub.cfg.SendBuffer
	}
	return &Client{
		id:        uuid.New().String(),
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, size),
		observing: observe,
		done:      make(chan struct{}),
	}
}

func (c *Client) GetID() string {
	return c.id
}

// Identity returns the registered user and session, empty when unregistered.
func (c *Client) Identity() (userID, sessionID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.sessionID
}

// Observing returns the session the client watches without being a member.
func (c *Client) Observing() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.observing
}

// Observe sets the watched session if none is set yet.
func (c *Client) Observe(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.observing != "" {
		return false
	}
	c.observing = sessionID
	return true
}

func (c *Client) bind(userID, sessionID string) {
	c.mu.Lock()
	c.userID, c.sessionID = userID, sessionID
	c.mu.Unlock()
}

// interested reports whether the client should receive sessionID's traffic.
func (c *Client) interested(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID == sessionID || c.observing == sessionID
}

func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) IsOpen() bool {
	return c.State() == StateOpen
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
}

func (c *Client) transition(from, to ConnState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// trySend queues data without blocking. It reports false when the client is
// not open or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	if !c.IsOpen() {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close starts the closing handshake. The write pump sends the close frame
// and drops the socket, and the read pump then runs the hub's close handling.
func (c *Client) Close() {
	c.transition(StateConnecting, StateClosing)
	c.transition(StateOpen, StateClosing)
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer c.hub.pumps.Done()
	defer func() {
		c.Close()
		c.hub.HandleClose(c)
		_ = c.conn.Close()
		c.setState(StateClosed)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("WebSocket read error", "clientID", c.id, "error", err)
			} else {
				c.hub.logger.Debug("WebSocket connection closed", "clientID", c.id, "error", err)
			}
			return
		}
		c.hub.HandleFrame(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.logger.Debug("WritePump finished", "clientID", c.id)
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("Error writing message", "clientID", c.id, "error", err)
				c.Close()
				_ = c.conn.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("Error sending ping", "clientID", c.id, "error", err)
				c.Close()
				_ = c.conn.Close()
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return
		}
	}
}

// Start attaches the client to the hub and runs its pumps.
func (c *Client) Start() {
	if !c.hub.track() {
		c.hub.logger.Debug("Rejecting connection during shutdown", "clientID", c.id)
		_ = c.conn.Close()
		c.setState(StateClosed)
		return
	}
	c.hub.Attach(c)
	go c.writePump()
	go c.readPump()
}

// ServeWS upgrades the request and starts a client. sessionID is the
// optional session the socket observes from the start.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := NewClient(hub, conn, sessionID)
	hub.logger.Info("New WebSocket connection established", "clientID", client.id, "observing", sessionID)
	client.Start()
}
