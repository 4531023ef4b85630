package ipc

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"borealis/pkg/types"
)

const (
	// AuthTimeout bounds how long an accepted connection may take to
	// present its token before the server drops it.
	AuthTimeout = 5 * time.Second

	// ReadTimeout is the per-read deadline on an authenticated connection.
	// A timeout is routine; the read loop re-checks for shutdown and keeps
	// going.
	ReadTimeout = 10 * time.Second

	// WriteTimeout bounds a single message write so an unresponsive peer
	// cannot wedge a dispatch goroutine.
	WriteTimeout = 10 * time.Second
)

// Dispatcher runs a named tool on behalf of an authenticated sidecar.
type Dispatcher func(ctx context.Context, name string, args map[string]any) (any, error)

// ServerConfig configures a host-side IPC listener.
type ServerConfig struct {
	// Channel names the endpoint; the socket is created at
	// SocketPath(Channel).
	Channel string
	// Token is the shared secret clients must present.
	Token string
	// OnAuth, when set, observes every handshake outcome.
	OnAuth func(ok bool)
	// BaseContext is the parent of every dispatch context. Defaults to
	// context.Background().
	BaseContext context.Context
	// Logger defaults to a no-op logger.
	Logger zerolog.Logger
}

// Server is the host side of the channel: it owns the unix socket, verifies
// the handshake, pushes the tool table, and dispatches tool calls.
type Server struct {
	channel    string
	socketPath string
	token      string
	dispatch   Dispatcher
	onAuth     func(ok bool)
	log        zerolog.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	closedMu sync.RWMutex
	closed   bool
	wg       sync.WaitGroup

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	toolsMu sync.Mutex
	tools   []types.ToolSpec
}

// Listen binds the channel's unix socket. The accept loop does not run until
// Start.
func Listen(cfg ServerConfig, dispatch Dispatcher) (*Server, error) {
	if cfg.Channel == "" {
		return nil, errors.New("ipc: channel name is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("ipc: auth token is required")
	}
	if dispatch == nil {
		return nil, errors.New("ipc: dispatcher is required")
	}
	socketPath := SocketPath(cfg.Channel)
	// A stale socket from a crashed previous run would fail the bind.
	os.Remove(socketPath)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	// Owner-only socket; other local users never reach the handshake.
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	base := cfg.BaseContext
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	s := &Server{
		channel:    cfg.Channel,
		socketPath: socketPath,
		token:      cfg.Token,
		dispatch:   dispatch,
		onAuth:     cfg.OnAuth,
		log:        cfg.Logger,
		listener:   listener,
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[net.Conn]struct{}),
	}
	s.log.Debug().Str("socket", socketPath).Msg("ipc server listening")
	return s, nil
}

// Channel returns the channel name this server is bound to.
func (s *Server) Channel() string { return s.channel }

// SocketPath returns the unix socket path.
func (s *Server) SocketPath() string { return s.socketPath }

// SetTools records the table pushed to clients after a successful handshake.
// The sidecar manager snapshots its registrations at start time.
func (s *Server) SetTools(tools []types.ToolSpec) {
	s.toolsMu.Lock()
	s.tools = append([]types.ToolSpec(nil), tools...)
	s.toolsMu.Unlock()
}

// Start launches the accept loop. The WaitGroup is incremented here, not in
// the goroutine, to avoid racing Close.
func (s *Server) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Server) run() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("ipc accept error")
			continue
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	reader := bufio.NewReader(conn)
	w := &connWriter{conn: conn}

	if !s.handshake(conn, reader, w) {
		return
	}
	s.sendTools(w)

	for {
		if s.isClosed() {
			return
		}
		conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if !s.isClosed() {
				s.log.Debug().Err(err).Msg("ipc connection ended")
			}
			return
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			s.log.Warn().Err(err).Msg("ipc malformed message")
			continue
		}
		switch msg.Type {
		case MessageTypeToolCall:
			if msg.ToolCall == nil {
				s.replyError(w, msg.ID, "missing toolCall payload")
				continue
			}
			// Each call gets its own goroutine so a slow handler
			// cannot block the next request; replies serialize
			// through the connWriter.
			s.wg.Add(1)
			go func(id string, call ToolCallRequest) {
				defer s.wg.Done()
				s.serveCall(w, id, call)
			}(msg.ID, *msg.ToolCall)
		default:
			s.log.Warn().Str("type", string(msg.Type)).Msg("ipc unexpected message type")
		}
	}
}

// handshake reads the first message and verifies the token. The deadline is
// tight: a peer that connects without promptly authenticating holds a
// connection slot for nothing.
func (s *Server) handshake(conn net.Conn, reader *bufio.Reader, w *connWriter) bool {
	conn.SetReadDeadline(time.Now().Add(AuthTimeout))
	line, err := reader.ReadString('\n')
	if err != nil {
		s.log.Warn().Err(err).Msg("ipc handshake read failed")
		return false
	}
	var msg Message
	if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Type != MessageTypeAuth || msg.Auth == nil {
		s.log.Warn().Msg("ipc handshake malformed")
		s.writeAuthAck(w, msg.ID, false, "malformed handshake")
		s.notifyAuth(false)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(msg.Auth.Token), []byte(s.token)) != 1 {
		s.log.Warn().Int("pid", msg.Auth.PID).Msg("ipc auth rejected")
		s.writeAuthAck(w, msg.ID, false, "invalid token")
		s.notifyAuth(false)
		return false
	}
	s.writeAuthAck(w, msg.ID, true, "")
	s.notifyAuth(true)
	s.log.Debug().Int("pid", msg.Auth.PID).Msg("ipc auth ok")
	return true
}

func (s *Server) serveCall(w *connWriter, id string, call ToolCallRequest) {
	result, err := s.runHandler(call)
	if err != nil {
		s.replyError(w, id, err.Error())
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		s.replyError(w, id, fmt.Sprintf("marshal result: %v", err))
		return
	}
	w.write(s.log, Message{ID: id, Type: MessageTypeToolReply, ToolReply: &ToolCallReply{Result: raw}})
}

// runHandler isolates dispatcher panics; a panicking tool handler must not
// take the whole channel down.
func (s *Server) runHandler(call ToolCallRequest) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %q panicked: %v", call.Name, r)
			s.log.Error().Str("tool", call.Name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("tool handler panicked")
		}
	}()
	return s.dispatch(s.ctx, call.Name, call.Arguments)
}

func (s *Server) sendTools(w *connWriter) {
	s.toolsMu.Lock()
	tools := append([]types.ToolSpec(nil), s.tools...)
	s.toolsMu.Unlock()
	w.write(s.log, Message{Type: MessageTypeTools, Tools: &ToolsUpdate{Tools: tools}})
}

func (s *Server) writeAuthAck(w *connWriter, id string, ok bool, reason string) {
	w.write(s.log, Message{ID: id, Type: MessageTypeAuthAck, AuthAck: &AuthAck{OK: ok, Reason: reason}})
}

func (s *Server) replyError(w *connWriter, id, reason string) {
	w.write(s.log, Message{ID: id, Type: MessageTypeToolReply, ToolReply: &ToolCallReply{Error: reason}})
}

func (s *Server) notifyAuth(ok bool) {
	if s.onAuth != nil {
		s.onAuth(ok)
	}
}

func (s *Server) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

// Close stops the accept loop, drops live connections, cancels in-flight
// dispatches, and removes the socket file. Idempotent.
func (s *Server) Close() error {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return nil
	}
	s.closed = true
	s.closedMu.Unlock()

	s.cancel()
	err := s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	if removeErr := os.Remove(s.socketPath); removeErr != nil && !os.IsNotExist(removeErr) {
		s.log.Warn().Err(removeErr).Str("socket", s.socketPath).Msg("remove socket file")
	}
	s.log.Debug().Msg("ipc server closed")
	return err
}

// connWriter serializes writes from concurrent dispatch goroutines.
type connWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *connWriter) write(log zerolog.Logger, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("ipc marshal message")
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if _, err := w.conn.Write(append(data, '\n')); err != nil {
		log.Warn().Err(err).Msg("ipc write error")
	}
}
