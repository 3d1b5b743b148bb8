package gateway

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"realtime-gateway/internal/auth"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Maximum inbound frame size. Clients only send subscribe commands.
	maxMessageSize = 512

	// Outbound frame buffer per connection. A client that falls this far
	// behind is dropped rather than allowed to stall broadcasts.
	sendBuffer = 256
)

// Client supervises one accepted socket: command handling, heartbeat and
// teardown. It is owned by its two pumps; the registry only holds it as a
// registry.Conn.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity auth.Identity
	logger   *slog.Logger

	// alive is cleared on every heartbeat tick and set again by the pong
	// handler. A tick that finds it still cleared means a dead peer.
	alive  int32
	closed int32
	done   chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, identity auth.Identity, logger *slog.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:       id,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		identity: identity,
		logger:   logger.With("clientID", id, "subject", identity.SubjectID),
		alive:    1,
		done:     make(chan struct{}),
	}
}

// Deliver implements registry.Conn. It never blocks: a closed client or a
// full send buffer skips this connection without affecting the broadcast.
func (c *Client) Deliver(payload []byte) bool {
	if atomic.LoadInt32(&c.closed) == 1 {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn("send buffer full, dropping client")
		c.teardown()
		return false
	}
}

// teardown releases everything the connection holds. It runs from the read
// pump, the write pump and Deliver; only the first call does any work.
func (c *Client) teardown() {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}
	close(c.done)
	c.hub.removeClient(c)
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("error closing connection", "error", err)
	}
	c.logger.Info("client disconnected")
}

// readPump processes inbound frames in order. Malformed frames are ignored
// so a buggy client cannot disconnect itself by accident.
func (c *Client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		atomic.StoreInt32(&c.alive, 1)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.logger.Debug("ignoring malformed frame", "error", err)
			continue
		}
		if !cmd.valid() {
			c.logger.Debug("ignoring unknown command", "type", cmd.Type)
			continue
		}

		switch cmd.Type {
		case CommandSubscribe:
			c.hub.subscribe(c, cmd.Channel)
		case CommandUnsubscribe:
			c.hub.unsubscribe(c, cmd.Channel)
		}
	}
}

// writePump owns all writes to the socket: broadcast frames and heartbeat
// pings. On a tick without an intervening pong the peer is treated as dead
// and terminated, so an unresponsive client is gone within two intervals.
func (c *Client) writePump(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&c.alive, 1, 0) {
				c.logger.Warn("heartbeat missed, terminating dead peer")
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}
