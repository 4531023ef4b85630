package sidecar

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tools.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `tools:
  - name: select_object
    description: Select an object in the scene
    input_schema:
      type: object
      properties:
        name:
          type: string
  - name: create_node
    description: Create a node
`)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(m.Tools))
	}
	if m.Tools[0].Name != "select_object" || m.Tools[0].InputSchema["type"] != "object" {
		t.Fatalf("first tool = %+v", m.Tools[0])
	}
}

func TestLoadManifestMissingFile(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing manifest")
	}
}

func TestLoadManifestUnnamedTool(t *testing.T) {
	path := writeManifest(t, "tools:\n  - description: no name\n")
	if _, err := LoadManifest(path); err == nil {
		t.Fatalf("expected error for unnamed tool")
	}
}

func TestRegisterManifest(t *testing.T) {
	path := writeManifest(t, `tools:
  - name: known
    description: has a handler
  - name: unknown
    description: resolver does not know it
`)
	s, err := New(Config{Bin: "unused"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := s.RegisterManifest(path, func(name string) ToolHandler {
		if name != "known" {
			return nil
		}
		return func(context.Context, map[string]any) (any, error) { return nil, nil }
	})
	if err != nil {
		t.Fatalf("RegisterManifest: %v", err)
	}
	if n != 1 {
		t.Fatalf("registered = %d, want 1", n)
	}
	tools := s.Tools()
	if len(tools) != 1 || tools[0].Name != "known" {
		t.Fatalf("tools = %v", tools)
	}
}

func TestRegisterManifestNilResolver(t *testing.T) {
	path := writeManifest(t, "tools:\n  - name: x\n")
	s, err := New(Config{Bin: "unused"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.RegisterManifest(path, nil); err == nil {
		t.Fatalf("expected error for nil resolver")
	}
}

func writeManifestDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadManifestDir(t *testing.T) {
	dir := writeManifestDir(t, map[string]string{
		"b.yaml":     "tools:\n  - name: zoom\n",
		"a.yml":      "tools:\n  - name: pan\n  - name: orbit\n",
		"notes.txt":  "not a manifest",
		"scene.json": "{}",
	})
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tools, err := LoadManifestDir(dir)
	if err != nil {
		t.Fatalf("LoadManifestDir: %v", err)
	}
	if len(tools) != 3 {
		t.Fatalf("tools = %d, want 3", len(tools))
	}
	// lexical filename order: a.yml before b.yaml
	if tools[0].Name != "pan" || tools[1].Name != "orbit" || tools[2].Name != "zoom" {
		t.Fatalf("unexpected order: %v", tools)
	}
}

func TestLoadManifestDirMissing(t *testing.T) {
	if _, err := LoadManifestDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestLoadManifestDirBadFileNamed(t *testing.T) {
	dir := writeManifestDir(t, map[string]string{
		"bad.yaml": "tools:\n  - description: unnamed\n",
	})
	_, err := LoadManifestDir(dir)
	if err == nil {
		t.Fatalf("expected error for bad manifest")
	}
	if !strings.Contains(err.Error(), "bad.yaml") {
		t.Fatalf("error should name the file: %v", err)
	}
}

func TestRegisterManifestDir(t *testing.T) {
	dir := writeManifestDir(t, map[string]string{
		"tools.yaml": "tools:\n  - name: pan\n  - name: zoom\n",
		"more.yml":   "tools:\n  - name: orbit\n",
	})
	s, err := New(Config{Bin: "unused"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := s.RegisterManifestDir(dir, func(name string) ToolHandler {
		if name == "orbit" {
			return nil
		}
		return func(context.Context, map[string]any) (any, error) { return nil, nil }
	})
	if err != nil {
		t.Fatalf("RegisterManifestDir: %v", err)
	}
	if n != 2 {
		t.Fatalf("registered = %d, want 2", n)
	}
	tools := s.Tools()
	if len(tools) != 2 || tools[0].Name != "pan" || tools[1].Name != "zoom" {
		t.Fatalf("tools = %v", tools)
	}
}
