package sidecar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"borealis/internal/ipc"
	"borealis/pkg/types"
)

// ToolHandler runs a registered tool. Handlers execute on IPC dispatch
// goroutines; anything they touch must be safe to use off the main thread.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

type toolEntry struct {
	spec    types.ToolSpec
	handler ToolHandler
}

// Sidecar spawns and manages one out-of-process MCP tool server.
type Sidecar struct {
	cfg        Config
	channel    string
	token      string
	log        zerolog.Logger
	pub        EventPublisher
	httpClient *http.Client

	// lifecycleMu serializes Start and Stop so concurrent starts cannot
	// spawn two children.
	lifecycleMu sync.Mutex

	mu      sync.Mutex
	tools   map[string]toolEntry
	active  map[string]toolEntry // snapshot served to the running child
	running bool
	port    int
	cmd     *exec.Cmd
	server  *ipc.Server
	waitCh  chan error
}

// New constructs a stopped manager. The channel name and auth token are
// generated here, once per instance: a restart reuses both.
func New(cfg Config) (*Sidecar, error) {
	if strings.TrimSpace(cfg.Bin) == "" {
		cfg.Bin = defaultBin
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	token, err := ipc.NewAuthToken()
	if err != nil {
		return nil, err
	}
	return &Sidecar{
		cfg:     cfg,
		channel: ipc.NewChannelName(),
		token:   token,
		log:     cfg.Logger,
		pub:     cfg.Publisher,
		// Timeout=0: readiness probes carry their own context deadlines.
		httpClient: &http.Client{Timeout: 0},
		tools:      make(map[string]toolEntry),
	}, nil
}

// Channel returns the IPC channel name, fixed at construction.
func (s *Sidecar) Channel() string { return s.channel }

// Token returns the shared auth token, fixed at construction.
func (s *Sidecar) Token() string { return s.token }

// Port returns the child's HTTP port; 0 unless running.
func (s *Sidecar) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// RegisterTool records a tool in the local table; the last registration for
// a name wins. Tools registered while the child is running become visible on
// the next start, not the current one.
func (s *Sidecar) RegisterTool(name, description string, handler ToolHandler, inputSchema map[string]any) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("sidecar: tool name is empty")
	}
	if handler == nil {
		return errors.New("sidecar: tool handler is nil")
	}
	s.mu.Lock()
	s.tools[name] = toolEntry{
		spec:    types.ToolSpec{Name: name, Description: description, InputSchema: inputSchema},
		handler: handler,
	}
	s.mu.Unlock()
	return nil
}

// Tools returns the registered tool specs sorted by name.
func (s *Sidecar) Tools() []types.ToolSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ToolSpec, 0, len(s.tools))
	for _, e := range s.tools {
		out = append(out, e.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start spawns the child and waits until its HTTP endpoint answers, which
// implies the child has also authenticated on the IPC channel. Idempotent:
// when the child is already running it returns the bound port without
// spawning again. On any failure nothing is left half-initialized.
func (s *Sidecar) Start() (int, error) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.running {
		port := s.port
		s.mu.Unlock()
		return port, nil
	}
	// Freeze the tool table for this run.
	active := make(map[string]toolEntry, len(s.tools))
	for name, e := range s.tools {
		active[name] = e
	}
	s.active = active
	s.mu.Unlock()

	binPath, err := resolveBin(s.cfg.Bin)
	if err != nil {
		return 0, err
	}

	srv, err := ipc.Listen(ipc.ServerConfig{
		Channel: s.channel,
		Token:   s.token,
		OnAuth:  s.onAuth,
		Logger:  s.log,
	}, s.dispatch)
	if err != nil {
		return 0, fmt.Errorf("bind ipc channel: %w", err)
	}
	srv.SetTools(specsOf(active))
	srv.Start()

	port := s.cfg.Port
	if port <= 0 {
		port, err = pickFreePort(s.cfg.Host)
		if err != nil {
			srv.Close()
			return 0, err
		}
	}

	args := []string{
		"--channel", s.channel,
		"--host", s.cfg.Host,
		"--port", strconv.Itoa(port),
		"--log-level", s.cfg.LogLevel,
	}
	cmd := exec.Command(binPath, args...)
	cmd.Env = append(os.Environ(), ipc.TokenEnv+"="+s.token)
	// Capture stderr for diagnostics; the tail is included on failure.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		srv.Close()
		return 0, fmt.Errorf("start sidecar: %w", err)
	}
	pid := cmd.Process.Pid
	s.log.Info().Int("pid", pid).Str("host", s.cfg.Host).Int("port", port).Msg("sidecar spawned")
	s.pub.Publish(Event{Name: "spawn_start", Channel: s.channel, Fields: map[string]any{"pid": pid, "host": s.cfg.Host, "port": port}})

	// Early-exit watcher: surface a child failure before readiness.
	waitErrCh := make(chan error, 1)
	go func() {
		waitErrCh <- cmd.Wait()
	}()

	baseURL := fmt.Sprintf("http://%s:%d", s.cfg.Host, port)
	deadline := time.Now().Add(s.cfg.StartTimeout)
	for {
		if time.Now().After(deadline) {
			s.log.Warn().Int("pid", pid).Msg("sidecar readiness timeout")
			s.pub.Publish(Event{Name: "spawn_timeout", Channel: s.channel, Fields: map[string]any{"pid": pid}})
			killAndReap(cmd, waitErrCh)
			srv.Close()
			return 0, startTimeoutError{url: baseURL}
		}
		select {
		case werr := <-waitErrCh:
			srv.Close()
			tail := stderrTail(&stderr)
			s.pub.Publish(Event{Name: "spawn_exit", Channel: s.channel, Fields: map[string]any{"pid": pid, "error": fmt.Sprint(werr)}})
			if werr != nil {
				s.log.Warn().Int("pid", pid).Err(werr).Msg("sidecar exited early")
				return 0, fmt.Errorf("sidecar exited early: %v; stderr tail: %s", werr, tail)
			}
			s.log.Warn().Int("pid", pid).Msg("sidecar exited before ready")
			return 0, fmt.Errorf("sidecar exited before ready; stderr tail: %s", tail)
		default:
		}
		if s.healthy(baseURL, time.Second) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	s.log.Info().Str("url", baseURL).Msg("sidecar ready")
	s.pub.Publish(Event{Name: "spawn_ready", Channel: s.channel, Fields: map[string]any{"pid": pid, "url": baseURL}})

	s.mu.Lock()
	s.running = true
	s.port = port
	s.cmd = cmd
	s.server = srv
	s.waitCh = waitErrCh
	s.mu.Unlock()
	return port, nil
}

// Stop terminates the child, graceful signal first, force kill after the stop
// timeout, then closes the IPC endpoint. Safe to call when not running.
func (s *Sidecar) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cmd := s.cmd
	srv := s.server
	waitCh := s.waitCh
	s.running = false
	s.port = 0
	s.cmd = nil
	s.server = nil
	s.waitCh = nil
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		pid := cmd.Process.Pid
		cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-waitCh:
			s.pub.Publish(Event{Name: "stop", Channel: s.channel, Fields: map[string]any{"pid": pid}})
		case <-time.After(s.cfg.StopTimeout):
			cmd.Process.Kill()
			<-waitCh
			s.pub.Publish(Event{Name: "stop_kill", Channel: s.channel, Fields: map[string]any{"pid": pid}})
		}
	}
	if srv != nil {
		srv.Close()
	}
	s.log.Info().Msg("sidecar stopped")
	return nil
}

// Alive reports whether the child process is currently running. Liveness is
// probed with signal 0, so a crashed child turns Alive false before anyone
// calls Stop.
func (s *Sidecar) Alive() bool {
	s.mu.Lock()
	cmd := s.cmd
	running := s.running
	s.mu.Unlock()
	if !running || cmd == nil || cmd.Process == nil {
		return false
	}
	return cmd.Process.Signal(syscall.Signal(0)) == nil
}

// With starts the sidecar, runs fn with the bound port, and always stops the
// child afterwards, even when fn fails.
func (s *Sidecar) With(fn func(port int) error) error {
	port, err := s.Start()
	if err != nil {
		return err
	}
	defer s.Stop()
	return fn(port)
}

// dispatch resolves a tool against the snapshot taken at Start and runs its
// handler. Per-call goroutines and panic isolation live in the IPC server.
func (s *Sidecar) dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.Lock()
	entry, ok := s.active[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return entry.handler(ctx, args)
}

func (s *Sidecar) onAuth(ok bool) {
	name := "auth_ok"
	if !ok {
		name = "auth_rejected"
	}
	s.pub.Publish(Event{Name: name, Channel: s.channel, Fields: map[string]any{}})
}

// healthy checks whether the child at baseURL answers its health endpoint.
func (s *Sidecar) healthy(baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// resolveBin locates the sidecar executable. A name containing a path
// separator is checked as given; a bare name is tried next to the current
// executable before falling back to PATH, covering the usual deployment
// where host and sidecar binaries ship in one directory.
func resolveBin(bin string) (string, error) {
	if strings.ContainsRune(bin, os.PathSeparator) {
		if _, err := exec.LookPath(bin); err != nil {
			return "", binaryNotFoundError{bin: bin}
		}
		return bin, nil
	}
	if exe, err := os.Executable(); err == nil {
		adjacent := filepath.Join(filepath.Dir(exe), bin)
		if _, err := exec.LookPath(adjacent); err == nil {
			return adjacent, nil
		}
	}
	lp, err := exec.LookPath(bin)
	if err != nil {
		return "", binaryNotFoundError{bin: bin}
	}
	return lp, nil
}

func specsOf(entries map[string]toolEntry) []types.ToolSpec {
	out := make([]types.ToolSpec, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func killAndReap(cmd *exec.Cmd, waitCh <-chan error) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
	}
}

func stderrTail(buf *bytes.Buffer) string {
	tail := buf.String()
	if len(tail) > 4096 {
		tail = tail[len(tail)-4096:]
	}
	return strings.TrimSpace(tail)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", host+":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr := l.Addr().String()
	lastColon := strings.LastIndex(addr, ":")
	if lastColon < 0 {
		return 0, fmt.Errorf("unexpected addr: %s", addr)
	}
	p, err := strconv.Atoi(addr[lastColon+1:])
	if err != nil {
		return 0, err
	}
	return p, nil
}
