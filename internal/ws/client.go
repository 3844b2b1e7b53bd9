package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBufferSize = 256
)

var errClientClosed = errors.New("connection closed")

// Client is one websocket connection. It implements session.Sender so the
// registry can hand messages to it without knowing about sockets.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	log     *slog.Logger
}

func newClient(id string, conn *websocket.Conn, limiter *rate.Limiter) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		limiter: limiter,
		log:     slog.Default().With("component", "ws", "session_id", id),
	}
}

// Send queues payload for the write pump, giving up when ctx expires or the
// connection has gone away.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("encode reply", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := c.Send(ctx, data); err != nil {
		c.log.Debug("reply dropped", "err", err)
	}
}

// close stops the write pump, which owns closing the socket.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// readPump hands every inbound frame to handle until the connection fails.
// Frames over the rate limit are answered with an error and skipped.
func (c *Client) readPump(handle func(raw []byte)) {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("read failed", "err", err)
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.sendJSON(Reply{Type: TypeAck, Status: StatusError, Error: "rate limit exceeded"})
			continue
		}
		handle(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
