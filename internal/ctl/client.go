package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

const (
	clientName    = "borealisctl"
	clientVersion = "0.1.0"
)

// zlog is a no-op until setLogLevel runs; diagnostics go to stderr so
// stdout stays clean for command output.
var zlog = zerolog.Nop()

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zlog = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()
}

// connect dials the configured endpoint and completes the MCP handshake.
// The returned session is ready for requests; the caller closes it.
func connect(ctx context.Context, cfg *Config) (*mcp.ClientSession, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint: pass --endpoint or set BOREALIS_ENDPOINT")
	}
	zlog.Debug().Str("endpoint", cfg.Endpoint).Msg("connecting")
	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: cfg.Endpoint}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Endpoint, err)
	}
	return session, nil
}

func listTools(cfg *Config, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	session, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}
	zlog.Debug().Int("count", len(res.Tools)).Msg("tools listed")
	writeToolTable(out, res.Tools)
	return nil
}

func callTool(cfg *Config, out io.Writer, name string, args map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	session, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	start := time.Now()
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return fmt.Errorf("tools/call %s: %w", name, err)
	}
	zlog.Debug().Str("tool", name).Dur("dur", time.Since(start)).Bool("is_error", res.IsError).Msg("tool called")

	if text := contentText(res.Content); text != "" {
		fmt.Fprintln(out, text)
	}
	if res.IsError {
		return fmt.Errorf("tool %s reported an error", name)
	}
	return nil
}

func ping(cfg *Config, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	session, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	start := time.Now()
	if err := session.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Fprintf(out, "%s ok (%s)\n", cfg.Endpoint, time.Since(start).Round(time.Millisecond))
	return nil
}

// parseToolArgs decodes the --args payload. Empty input means no
// arguments; anything else must be a JSON object.
func parseToolArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return args, nil
}

func writeToolTable(out io.Writer, tools []*mcp.Tool) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, t := range tools {
		desc := strings.ReplaceAll(t.Description, "\n", " ")
		fmt.Fprintf(w, "%s\t%s\n", t.Name, desc)
	}
	w.Flush()
}

// contentText joins the text blocks of a tool result. Non-text content
// is rendered as raw JSON so nothing silently disappears.
func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		if b, err := json.Marshal(c); err == nil {
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, "\n")
}
