package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 25 * time.Second
	pingTimeout  = 5 * time.Second
)

// Conn is one websocket client. The session user is fixed at upgrade; the
// identified user is set by join-user and must match it.
type Conn struct {
	ID          string
	SessionUser string

	ws     *websocket.Conn
	send   chan Outbound
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.RWMutex
	userID string
	rooms  map[string]struct{}
	closed bool
}

func newConn(sessionUser string, ws *websocket.Conn, logger *slog.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ID:          uuid.NewString(),
		SessionUser: sessionUser,
		ws:          ws,
		send:        make(chan Outbound, sendBuffer),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		rooms:       make(map[string]struct{}),
	}
}

// UserID is empty until the connection is identified.
func (c *Conn) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Conn) identify(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

func (c *Conn) inRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Enqueue queues ev without blocking. A full queue drops the frame.
func (c *Conn) Enqueue(ev Outbound) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		if c.logger != nil {
			c.logger.Warn("websocket send queue full, dropping frame", "conn_id", c.ID, "user_id", c.userID, "event", ev.Event)
		}
		return false
	}
}

func (c *Conn) start() {
	go c.writeLoop()
	go c.keepAliveLoop()
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.send:
			writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.ws, ev)
			cancel()
			if err != nil {
				if c.logger != nil {
					c.logger.Debug("websocket write failed", "conn_id", c.ID, "error", err)
				}
				c.cancel()
				return
			}
		}
	}
}

func (c *Conn) keepAliveLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, pingTimeout)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *Conn) close(status websocket.StatusCode, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	// The handshake must run before cancel: a cancelled read context makes the
	// library drop the socket without a close frame.
	if c.ws != nil {
		_ = c.ws.Close(status, reason)
	}
	c.cancel()
}
