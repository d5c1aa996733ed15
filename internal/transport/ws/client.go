package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/courier-chat/courier/internal/protocol"
	"github.com/courier-chat/courier/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client is a single WebSocket connection. It implements service.Peer: sends
// are queued on a buffered channel and dropped when the client cannot keep
// up, matching the fire-and-forget delivery contract.
type Client struct {
	router *service.Router
	conn   *websocket.Conn

	send     chan []byte
	closeReq chan string
	done     chan struct{}
	once     sync.Once
}

var _ service.Peer = (*Client)(nil)

func NewClient(router *service.Router, conn *websocket.Conn) *Client {
	return &Client{
		router:   router,
		conn:     conn,
		send:     make(chan []byte, sendBufSize),
		closeReq: make(chan string, 1),
		done:     make(chan struct{}),
	}
}

// Send queues one frame for delivery.
func (c *Client) Send(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("ws: marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		// Buffer full; the frame is dropped.
	}
}

// Close asks the write pump to flush queued frames and close the transport
// with a normal-closure code. Used for force-logout.
func (c *Client) Close(reason string) {
	select {
	case c.closeReq <- reason:
	default:
	}
}

// ReadPump consumes inbound frames in arrival order and drives the
// connection's event flow. It returns when the transport closes, evicting
// the connection on the way out.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.router.Disconnect(c)
		c.shutdown()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Printf("ws: read error: %v", err)
			}
			return
		}
		c.dispatch(ctx, data)
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		log.Printf("ws: dropping frame: %v", err)
		return
	}

	switch f := frame.(type) {
	case protocol.Identify:
		c.router.Identify(ctx, c, f)
	case protocol.Typing:
		c.router.Typing(c, f)
	case protocol.PrivateMessageSend:
		if err := c.router.Private(ctx, c, f); err != nil {
			log.Printf("ws: private message: %v", err)
		}
	case protocol.DeleteForEveryone:
		if err := c.router.DeleteForEveryone(ctx, c, f); err != nil {
			log.Printf("ws: delete-message-for-everyone: %v", err)
		}
	case protocol.PlainText:
		c.router.PlainChat(ctx, c, f.Text)
	}
}

// WritePump serializes all writes to the transport: queued frames, pings,
// and the final close.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(ctx, message); err != nil {
				log.Printf("ws: write error: %v", err)
				return
			}

		case reason := <-c.closeReq:
			c.flush(ctx)
			c.conn.Close(websocket.StatusNormalClosure, reason)
			return

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Printf("ws: ping error: %v", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) write(ctx context.Context, message []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, message)
}

// flush drains frames queued before a close request, a force-logout notice
// among them.
func (c *Client) flush(ctx context.Context) {
	for {
		select {
		case message := <-c.send:
			if err := c.write(ctx, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
}
