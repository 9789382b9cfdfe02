package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/rewear/internal/auth"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	// Clients only ever send small control frames.
	maxInboundSize = 512
)

// Session frames exchanged outside the item event stream.
const (
	EntitySession   = "session"
	ActionConnected = "connected"
	ActionPong      = "pong"
)

// Client is one authenticated connection. A user may hold several, one per
// open tab.
type Client struct {
	hub     *Hub
	conn    *ws.Conn
	send    chan []byte
	userID  int64
	isAdmin bool
	logger  *slog.Logger
}

func NewClient(hub *Hub, conn *ws.Conn, ac auth.AuthContext, logger *slog.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		userID:  ac.UserID,
		isAdmin: ac.IsAdmin,
		logger:  logger,
	}
}

// Run registers the client and greets it with a session_connected frame, then
// serves the connection until either side goes away.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.enqueue(NewMessage(EntitySession, ActionConnected, c.userID, map[string]any{"is_admin": c.isAdmin}))

	go func() {
		c.writePump(ctx)
		cancel()
	}()

	err := c.readPump(ctx)
	c.logger.Debug("websocket closed", "user_id", c.userID, "status", ws.CloseStatus(err))
}

// enqueue queues a frame for this client only. It must not be called after
// Unregister.
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal message", "type", msg.Type, "error", err)
		return
	}
	c.deliver(msg.Type, data)
}

func (c *Client) deliver(typ string, data []byte) {
	select {
	case c.send <- data:
	default:
		c.logger.Debug("dropped message for slow client", "type", typ, "user_id", c.userID)
	}
}

// readPump answers {"type":"ping"} with a pong frame and ignores anything
// else. It returns the error that ended the connection.
func (c *Client) readPump(ctx context.Context) error {
	c.conn.SetReadLimit(maxInboundSize)
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != ws.MessageText {
			continue
		}
		var in struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &in) == nil && in.Type == "ping" {
			c.enqueue(NewMessage(EntitySession, ActionPong, 0, nil))
		}
	}
}

// writePump drains the send channel and pings idle connections. Every write
// is bounded by writeTimeout so a stalled peer cannot pin the goroutine.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusNormalClosure, "")
				return
			}
			if err := c.write(ctx, msg); err != nil {
				c.logger.Debug("websocket write", "user_id", c.userID, "error", err)
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
