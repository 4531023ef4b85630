package viewhub

import (
	"sync"

	"github.com/gorilla/websocket"

	"borealis/pkg/types"
)

const outboundBufferSize = 64

// Client is one connected view. Frames are queued on a bounded channel and
// written by WriteLoop; a full buffer marks the client as too slow to keep.
type Client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan types.ViewFrame
}

func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan types.ViewFrame, outboundBufferSize),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Queue enqueues a frame without blocking. False means the buffer is full
// or the client is closed.
func (c *Client) Queue(frame types.ViewFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) WriteLoop() {
	for frame := range c.send {
		if err := c.conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

// Close is idempotent. Queue checks the closed flag under the same mutex it
// sends under, so the channel close can never race a send.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
	}
	close(c.send)
}
