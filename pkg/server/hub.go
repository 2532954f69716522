package server

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	sendQueue = 256
)

// pongWait is how long a client may stay silent. Pings are sent at
// 9/10 of it.
var pongWait = 60 * time.Second

// hub fans events out to websocket clients. A client whose queue is full
// is dropped.
type hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	log      logr.Logger
	pongWait time.Duration
}

func newHub(log logr.Logger) *hub {
	return &hub{clients: make(map[*client]struct{}), log: log, pongWait: pongWait}
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.deliver(msg) {
			h.log.Info("dropping event client for slow reader", "remote", c.remote)
			go h.unregister(c)
		}
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

// client is one websocket subscriber. Until start is called, broadcasts
// are kept in pending so that they follow the initial state.
type client struct {
	conn     *websocket.Conn
	send     chan []byte
	remote   string
	log      logr.Logger
	pongWait time.Duration
	mu       sync.Mutex
	started  bool
	closed   bool
	pending  [][]byte
}

func newClient(conn *websocket.Conn, log logr.Logger, pongWait time.Duration) *client {
	return &client{
		conn:     conn,
		send:     make(chan []byte, sendQueue+1),
		remote:   conn.RemoteAddr().String(),
		log:      log,
		pongWait: pongWait,
	}
}

// start queues initial ahead of every event broadcast since the client
// was registered.
func (c *client) start(initial []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.started {
		return
	}
	c.send <- initial
	for _, msg := range c.pending {
		c.send <- msg
	}
	c.pending = nil
	c.started = true
}

// deliver queues msg and reports false when the client cannot keep up.
func (c *client) deliver(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	if !c.started {
		if len(c.pending) >= sendQueue {
			return false
		}
		c.pending = append(c.pending, msg)
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.V(1).Info("event write failed", "remote", c.remote, "error", err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.V(1).Info("event ping failed", "remote", c.remote, "error", err.Error())
				return
			}
		}
	}
}

// readLoop discards client messages and returns when the connection
// closes or no pong arrives in time.
func (c *client) readLoop(onClose func()) {
	defer onClose()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pending = nil
	close(c.send)
}
