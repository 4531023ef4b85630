package sidecar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"borealis/internal/common/fsutil"
)

// Manifest is the on-disk description of a tool set. Handlers cannot live in
// a file, so a manifest maps names to specs and a resolver supplies the
// handler for each name at registration time.
type Manifest struct {
	Tools []ManifestTool `yaml:"tools"`
}

// ManifestTool describes one tool entry in a manifest.
type ManifestTool struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	InputSchema map[string]any `yaml:"input_schema"`
}

// LoadManifest reads and parses a YAML tool manifest. A leading '~' in path
// is expanded.
func LoadManifest(path string) (*Manifest, error) {
	expanded, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if !fsutil.PathExists(expanded) {
		return nil, fmt.Errorf("manifest not found: %s", expanded)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for i, tool := range m.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			return nil, fmt.Errorf("manifest tool %d has no name", i)
		}
	}
	return &m, nil
}

// LoadManifestDir scans a directory for *.yaml and *.yml manifests and
// returns their tools concatenated in lexical filename order. Later files
// win when names collide, matching RegisterTool's last-wins rule.
func LoadManifestDir(dir string) ([]ManifestTool, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read manifest dir: %w", err)
	}
	var tools []ManifestTool
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		m, err := LoadManifest(filepath.Join(abs, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", e.Name(), err)
		}
		tools = append(tools, m.Tools...)
	}
	return tools, nil
}

// RegisterManifest loads a manifest and registers every tool the resolver
// can supply a handler for. Names the resolver does not know are skipped
// with a warning. Returns the number of tools registered.
func (s *Sidecar) RegisterManifest(path string, resolve func(name string) ToolHandler) (int, error) {
	if resolve == nil {
		return 0, errors.New("sidecar: manifest resolver is nil")
	}
	m, err := LoadManifest(path)
	if err != nil {
		return 0, err
	}
	return s.registerResolved(m.Tools, resolve)
}

// RegisterManifestDir is RegisterManifest over every manifest in a directory.
func (s *Sidecar) RegisterManifestDir(dir string, resolve func(name string) ToolHandler) (int, error) {
	if resolve == nil {
		return 0, errors.New("sidecar: manifest resolver is nil")
	}
	tools, err := LoadManifestDir(dir)
	if err != nil {
		return 0, err
	}
	return s.registerResolved(tools, resolve)
}

func (s *Sidecar) registerResolved(tools []ManifestTool, resolve func(name string) ToolHandler) (int, error) {
	registered := 0
	for _, tool := range tools {
		handler := resolve(tool.Name)
		if handler == nil {
			s.log.Warn().Str("tool", tool.Name).Msg("no handler for manifest tool")
			continue
		}
		if err := s.RegisterTool(tool.Name, tool.Description, handler, tool.InputSchema); err != nil {
			return registered, err
		}
		registered++
	}
	return registered, nil
}
