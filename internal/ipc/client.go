package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"borealis/pkg/types"
)

const (
	// DefaultDialTimeout bounds connection retries against a host socket
	// that may not be bound yet.
	DefaultDialTimeout = 5 * time.Second

	// DefaultCallTimeout bounds a tool round-trip when the caller's
	// context carries no deadline.
	DefaultCallTimeout = 30 * time.Second

	dialRetryInterval = 100 * time.Millisecond
)

// ClientConfig configures the sidecar side of the channel.
type ClientConfig struct {
	Channel     string
	Token       string
	DialTimeout time.Duration
	CallTimeout time.Duration
	Logger      zerolog.Logger
}

// Client is the sidecar side: it dials the host socket, authenticates, and
// issues correlated tool calls. Safe for concurrent use; replies are matched
// to callers by request ID, so calls may overlap freely.
type Client struct {
	conn        net.Conn
	token       string
	callTimeout time.Duration
	log         zerolog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Message

	toolsMu sync.Mutex
	tools   []types.ToolSpec
	onTools func([]types.ToolSpec)

	done     chan struct{}
	doneOnce sync.Once
	errMu    sync.Mutex
	err      error
}

// Dial connects to the channel's socket, retrying until the timeout. The
// host binds the socket before spawning the sidecar, so the first attempt
// normally succeeds; the retry loop covers slow starts on either side.
func Dial(cfg ClientConfig) (*Client, error) {
	if cfg.Channel == "" {
		return nil, errors.New("ipc: channel name is required")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	socketPath := SocketPath(cfg.Channel)
	var (
		conn net.Conn
		err  error
	)
	deadline := time.Now().Add(dialTimeout)
	for {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("dial %s: %w", socketPath, err)
		}
		time.Sleep(dialRetryInterval)
	}
	c := &Client{
		conn:        conn,
		token:       cfg.Token,
		callTimeout: callTimeout,
		log:         cfg.Logger,
		pending:     make(map[string]chan Message),
		done:        make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Authenticate presents the shared token. Must complete before Call; the
// host drops connections whose first message is not a valid handshake.
func (c *Client) Authenticate(ctx context.Context) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, AuthTimeout)
		defer cancel()
	}
	reply, err := c.roundTrip(ctx, Message{
		Type: MessageTypeAuth,
		Auth: &AuthRequest{Token: c.token, PID: os.Getpid()},
	})
	if err != nil {
		return err
	}
	if reply.Type != MessageTypeAuthAck || reply.AuthAck == nil {
		return fmt.Errorf("unexpected handshake reply type %q", reply.Type)
	}
	if !reply.AuthAck.OK {
		return authRejectedError{reason: reply.AuthAck.Reason}
	}
	return nil
}

// Call runs a named tool on the host and returns the raw JSON result. When
// ctx carries no deadline the configured call timeout applies. A handler
// failure on the host comes back as an error carrying the handler's message.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	reply, err := c.roundTrip(ctx, Message{
		Type:     MessageTypeToolCall,
		ToolCall: &ToolCallRequest{Name: name, Arguments: args},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, callTimeoutError{tool: name}
		}
		return nil, err
	}
	if reply.Type != MessageTypeToolReply || reply.ToolReply == nil {
		return nil, fmt.Errorf("unexpected reply type %q for tool %q", reply.Type, name)
	}
	if reply.ToolReply.Error != "" {
		return nil, fmt.Errorf("tool %q: %s", name, reply.ToolReply.Error)
	}
	return reply.ToolReply.Result, nil
}

// Tools returns the table the host pushed after the handshake.
func (c *Client) Tools() []types.ToolSpec {
	c.toolsMu.Lock()
	defer c.toolsMu.Unlock()
	return append([]types.ToolSpec(nil), c.tools...)
}

// OnTools registers a callback invoked from the read loop whenever the host
// pushes a tool table.
func (c *Client) OnTools(fn func([]types.ToolSpec)) {
	c.toolsMu.Lock()
	c.onTools = fn
	c.toolsMu.Unlock()
}

// Done is closed when the connection is gone; pending and future calls fail
// with a closed-connection error.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended; nil while it is still up.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.shutdown(connClosedError{})
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, msg Message) (Message, error) {
	id := uuid.NewString()
	msg.ID = id
	ch := make(chan Message, 1)

	c.pendingMu.Lock()
	if c.pending == nil {
		c.pendingMu.Unlock()
		return Message{}, connClosedError{}
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.write(msg); err != nil {
		c.forget(id)
		return Message{}, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return Message{}, connClosedError{}
		}
		return reply, nil
	case <-ctx.Done():
		c.forget(id)
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, connClosedError{}
	}
}

// write sends one framed envelope. writeMu keeps frames from overlapping
// round-trips intact on the wire.
func (c *Client) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return connClosedError{}
		}
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			c.shutdown(err)
			return
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			c.log.Warn().Err(err).Msg("ipc malformed message")
			continue
		}
		switch msg.Type {
		case MessageTypeTools:
			c.handleTools(msg.Tools)
		case MessageTypeAuthAck, MessageTypeToolReply:
			c.deliver(msg)
		default:
			c.log.Warn().Str("type", string(msg.Type)).Msg("ipc unexpected message type")
		}
	}
}

func (c *Client) deliver(msg Message) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		c.log.Warn().Str("id", msg.ID).Msg("ipc reply with no pending request")
		return
	}
	ch <- msg
}

func (c *Client) handleTools(update *ToolsUpdate) {
	if update == nil {
		return
	}
	c.toolsMu.Lock()
	c.tools = append([]types.ToolSpec(nil), update.Tools...)
	cb := c.onTools
	c.toolsMu.Unlock()
	if cb != nil {
		cb(update.Tools)
	}
}

func (c *Client) forget(id string) {
	c.pendingMu.Lock()
	if c.pending != nil {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// shutdown records the terminal error, fails every pending round-trip, and
// signals Done. Later round-trips fail fast on the nil pending map.
func (c *Client) shutdown(err error) {
	c.doneOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()

		c.pendingMu.Lock()
		pending := c.pending
		c.pending = nil
		c.pendingMu.Unlock()
		for _, ch := range pending {
			close(ch)
		}
		close(c.done)
	})
}
