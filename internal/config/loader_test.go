package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `http:
  host: 127.0.0.1
  port: 9999
  log_level: debug
  log_pretty: true
sidecar:
  bin: /opt/borealis/borealis-mcp
  start_timeout_ms: 20000
  stop_timeout_ms: 4000
ipc:
  call_timeout_ms: 45000
cors:
  enabled: true
  origins: ["http://localhost:5173"]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Host != "127.0.0.1" || cfg.HTTP.Port != 9999 || cfg.HTTP.LogLevel != "debug" || !cfg.HTTP.Pretty {
		t.Fatalf("unexpected http cfg: %+v", cfg.HTTP)
	}
	if cfg.Sidecar.Bin != "/opt/borealis/borealis-mcp" || cfg.Sidecar.StartTimeoutMS != 20000 || cfg.Sidecar.StopTimeoutMS != 4000 {
		t.Fatalf("unexpected sidecar cfg: %+v", cfg.Sidecar)
	}
	if cfg.IPC.CallTimeoutMS != 45000 {
		t.Fatalf("unexpected ipc cfg: %+v", cfg.IPC)
	}
	if !cfg.CORS.Enabled || len(cfg.CORS.Origins) != 1 {
		t.Fatalf("unexpected cors cfg: %+v", cfg.CORS)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"http":{"host":"0.0.0.0","port":7070},"sidecar":{"bin":"/b"},"ipc":{"call_timeout_ms":100}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Host != "0.0.0.0" || cfg.HTTP.Port != 7070 || cfg.Sidecar.Bin != "/b" || cfg.IPC.CallTimeoutMS != 100 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "[http]\nhost=\"::1\"\nport=8081\n[sidecar]\nbin=\"/x\"\nstart_timeout_ms=9\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Host != "::1" || cfg.HTTP.Port != 8081 || cfg.Sidecar.Bin != "/x" || cfg.Sidecar.StartTimeoutMS != 9 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}
