package ctl

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// helper to restore stubs after each test
func withCtlStubs(t *testing.T, stubs func()) func() {
	t.Helper()
	oldListTools := fnListTools
	oldCallTool := fnCallTool
	oldPing := fnPing
	stubs()
	return func() {
		fnListTools = oldListTools
		fnCallTool = oldCallTool
		fnPing = oldPing
	}
}

func TestMainWithArgs_ToolsInvokesAction(t *testing.T) {
	t.Setenv("BOREALIS_ENDPOINT", "")

	var gotEndpoint string
	cleanup := withCtlStubs(t, func() {
		fnListTools = func(cfg *Config, out io.Writer) error {
			gotEndpoint = cfg.Endpoint
			return nil
		}
	})
	defer cleanup()

	code := MainWithArgs([]string{"--endpoint", "http://127.0.0.1:9999/mcp", "tools"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if gotEndpoint != "http://127.0.0.1:9999/mcp" {
		t.Fatalf("endpoint not threaded to action: %q", gotEndpoint)
	}
}

func TestMainWithArgs_EndpointFromEnv(t *testing.T) {
	t.Setenv("BOREALIS_ENDPOINT", "http://envhost:1234/mcp")

	var gotEndpoint string
	cleanup := withCtlStubs(t, func() {
		fnPing = func(cfg *Config, out io.Writer) error {
			gotEndpoint = cfg.Endpoint
			return nil
		}
	})
	defer cleanup()

	if code := MainWithArgs([]string{"ping"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if gotEndpoint != "http://envhost:1234/mcp" {
		t.Fatalf("env endpoint not picked up: %q", gotEndpoint)
	}
}

func TestMainWithArgs_CallPassesNameAndArgs(t *testing.T) {
	t.Setenv("BOREALIS_ENDPOINT", "")

	var gotName string
	var gotArgs map[string]any
	cleanup := withCtlStubs(t, func() {
		fnCallTool = func(cfg *Config, out io.Writer, name string, args map[string]any) error {
			gotName = name
			gotArgs = args
			return nil
		}
	})
	defer cleanup()

	code := MainWithArgs([]string{"--endpoint", "http://x/mcp", "call", "scene_load", "--args", `{"path": "demo.blend", "frame": 3}`})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if gotName != "scene_load" {
		t.Fatalf("tool name not threaded: %q", gotName)
	}
	if gotArgs["path"] != "demo.blend" {
		t.Fatalf("args not decoded: %#v", gotArgs)
	}
	if gotArgs["frame"] != float64(3) {
		t.Fatalf("numeric arg not decoded: %#v", gotArgs["frame"])
	}
}

func TestMainWithArgs_CallWithoutToolNameFails(t *testing.T) {
	t.Setenv("BOREALIS_ENDPOINT", "")

	called := false
	cleanup := withCtlStubs(t, func() {
		fnCallTool = func(cfg *Config, out io.Writer, name string, args map[string]any) error {
			called = true
			return nil
		}
	})
	defer cleanup()

	if code := MainWithArgs([]string{"call"}); code != 1 {
		t.Fatalf("expected exit 1 for missing tool name, got %d", code)
	}
	if called {
		t.Fatalf("action should not run without a tool name")
	}
}

func TestMainWithArgs_CallBadArgsJSON(t *testing.T) {
	t.Setenv("BOREALIS_ENDPOINT", "")

	called := false
	cleanup := withCtlStubs(t, func() {
		fnCallTool = func(cfg *Config, out io.Writer, name string, args map[string]any) error {
			called = true
			return nil
		}
	})
	defer cleanup()

	if code := MainWithArgs([]string{"call", "x", "--args", "[1,2]"}); code != 1 {
		t.Fatalf("expected exit 1 for non-object args, got %d", code)
	}
	if called {
		t.Fatalf("action should not run with bad --args")
	}
}

func TestMainWithArgs_ActionErrorExit1(t *testing.T) {
	t.Setenv("BOREALIS_ENDPOINT", "")

	cleanup := withCtlStubs(t, func() {
		fnPing = func(cfg *Config, out io.Writer) error { return errors.New("boom") }
	})
	defer cleanup()

	if code := MainWithArgs([]string{"ping"}); code != 1 {
		t.Fatalf("expected exit 1 when action fails, got %d", code)
	}
}

func TestMainWithArgs_TimeoutFlagParsed(t *testing.T) {
	t.Setenv("BOREALIS_ENDPOINT", "")

	var gotTimeout time.Duration
	cleanup := withCtlStubs(t, func() {
		fnPing = func(cfg *Config, out io.Writer) error {
			gotTimeout = cfg.Timeout
			return nil
		}
	})
	defer cleanup()

	if code := MainWithArgs([]string{"--timeout", "3s", "ping"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if gotTimeout != 3*time.Second {
		t.Fatalf("timeout not threaded: %v", gotTimeout)
	}
}

func TestConnect_NoEndpoint(t *testing.T) {
	cfg := &Config{Endpoint: "", Timeout: time.Second}
	if err := ping(cfg, io.Discard); err == nil || !strings.Contains(err.Error(), "no endpoint") {
		t.Fatalf("expected no-endpoint error, got %v", err)
	}
}

func TestParseToolArgs(t *testing.T) {
	if args, err := parseToolArgs(""); err != nil || args != nil {
		t.Fatalf("empty input: got %#v, %v", args, err)
	}
	if args, err := parseToolArgs("  "); err != nil || args != nil {
		t.Fatalf("blank input: got %#v, %v", args, err)
	}
	args, err := parseToolArgs(`{"a": 1, "b": "two"}`)
	if err != nil {
		t.Fatalf("object input: unexpected err: %v", err)
	}
	if args["a"] != float64(1) || args["b"] != "two" {
		t.Fatalf("object input decoded wrong: %#v", args)
	}
	if _, err := parseToolArgs(`[1]`); err == nil {
		t.Fatalf("expected error for array input")
	}
	if _, err := parseToolArgs(`{`); err == nil {
		t.Fatalf("expected error for truncated input")
	}
}

func TestWriteToolTable(t *testing.T) {
	var buf bytes.Buffer
	writeToolTable(&buf, []*mcp.Tool{
		{Name: "scene_load", Description: "Load a scene\nfrom disk"},
		{Name: "scene_save", Description: "Save the scene"},
	})
	out := buf.String()
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "DESCRIPTION") {
		t.Fatalf("missing header: %q", out)
	}
	if !strings.Contains(out, "scene_load") || !strings.Contains(out, "scene_save") {
		t.Fatalf("missing rows: %q", out)
	}
	if !strings.Contains(out, "Load a scene from disk") {
		t.Fatalf("description not flattened into one cell: %q", out)
	}
}

func TestContentText(t *testing.T) {
	text := contentText([]mcp.Content{
		&mcp.TextContent{Text: "first"},
		&mcp.TextContent{Text: "second"},
	})
	if text != "first\nsecond" {
		t.Fatalf("unexpected joined text: %q", text)
	}
	if got := contentText(nil); got != "" {
		t.Fatalf("expected empty text for nil content, got %q", got)
	}
}
