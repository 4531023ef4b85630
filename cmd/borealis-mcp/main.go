package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"borealis/internal/config"
	"borealis/internal/ipc"
	"borealis/internal/mcpserv"
	"borealis/pkg/types"
)

// bridge implements mcpserv.Service on top of the IPC client. Readiness
// flips true after authentication and false again if the channel drops.
type bridge struct {
	client  *ipc.Client
	channel string
	authed  atomic.Bool
}

func (b *bridge) Tools() []types.ToolSpec { return b.client.Tools() }

func (b *bridge) Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	raw, err := b.client.Call(ctx, name, args)
	if err != nil && ipc.IsConnClosed(err) {
		return nil, channelDownError{err: err}
	}
	return raw, err
}

func (b *bridge) Ready() bool { return b.authed.Load() && b.client.Err() == nil }

func (b *bridge) Channel() string { return b.channel }

// channelDownError marks a lost host channel as a session-level fault (503)
// rather than a tool failure.
type channelDownError struct{ err error }

func (e channelDownError) Error() string   { return "host channel closed: " + e.err.Error() }
func (e channelDownError) StatusCode() int { return http.StatusServiceUnavailable }

func main() {
	// Flags with environment variable defaults
	defaultChannel := os.Getenv("BOREALIS_MCP_CHANNEL")
	defaultLogLevel := "info"
	if v := os.Getenv("BOREALIS_LOG_LEVEL"); v != "" {
		defaultLogLevel = v
	}
	channel := flag.String("channel", defaultChannel, "IPC channel name assigned by the host")
	host := flag.String("host", "127.0.0.1", "HTTP listen host")
	port := flag.Int("port", 0, "HTTP listen port assigned by the host (0 picks one)")
	logLevel := flag.String("log-level", defaultLogLevel, "Log level: trace, debug, info, warn, error")
	logPretty := flag.Bool("log-pretty", false, "Human-readable console logging")
	configPath := flag.String("config", "", "Optional config file (.yaml/.json/.toml)")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated allowed CORS origins (enables CORS)")
	corsMethods := flag.String("cors-methods", "POST,GET,OPTIONS", "Comma-separated allowed CORS methods")
	corsHeaders := flag.String("cors-headers", "Content-Type,Authorization", "Comma-separated allowed CORS headers")
	flag.Parse()

	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	callTimeout := time.Duration(0)
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		// Explicit flags win over file values.
		if !setFlags["host"] && cfg.HTTP.Host != "" {
			*host = cfg.HTTP.Host
		}
		if !setFlags["port"] && cfg.HTTP.Port != 0 {
			*port = cfg.HTTP.Port
		}
		if !setFlags["log-level"] && cfg.HTTP.LogLevel != "" {
			*logLevel = cfg.HTTP.LogLevel
		}
		if !setFlags["log-pretty"] && cfg.HTTP.Pretty {
			*logPretty = true
		}
		if cfg.IPC.CallTimeoutMS > 0 {
			callTimeout = time.Duration(cfg.IPC.CallTimeoutMS) * time.Millisecond
		}
		if cfg.CORS.Enabled && !setFlags["cors-origins"] {
			mcpserv.SetCORSOptions(true, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
		}
	}
	if origins := splitCSV(*corsOrigins); len(origins) > 0 {
		mcpserv.SetCORSOptions(true, origins, splitCSV(*corsMethods), splitCSV(*corsHeaders))
	}

	log := newLogger(*logLevel, *logPretty)

	if *channel == "" {
		log.Fatal().Msg("missing --channel (or BOREALIS_MCP_CHANNEL)")
	}
	token := os.Getenv(ipc.TokenEnv)
	if token == "" {
		log.Fatal().Str("env", ipc.TokenEnv).Msg("missing auth token in environment")
	}

	client, err := ipc.Dial(ipc.ClientConfig{
		Channel:     *channel,
		Token:       token,
		CallTimeout: callTimeout,
		Logger:      log,
	})
	if err != nil {
		log.Fatal().Err(err).Str("channel", *channel).Msg("dial host channel")
	}
	defer client.Close()

	authCtx, cancelAuth := context.WithTimeout(context.Background(), 10*time.Second)
	err = client.Authenticate(authCtx)
	cancelAuth()
	if err != nil {
		if ipc.IsAuthRejected(err) {
			log.Error().Err(err).Msg("host rejected auth token")
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("authenticate")
	}

	br := &bridge{client: client, channel: *channel}
	br.authed.Store(true)

	mcpserv.SetLogger(log)
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	mcpserv.SetBaseContext(baseCtx)

	mux := mcpserv.NewMux(br)
	addr := fmt.Sprintf("%s:%d", *host, *port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info().Str("addr", addr).Str("channel", *channel).Msg("borealis-mcp listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown on Ctrl+C / SIGTERM, and when the host closes the
	// channel: a sidecar without its host has nothing left to serve.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-client.Done():
		log.Info().Msg("host channel closed, shutting down")
	}
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
}

func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
