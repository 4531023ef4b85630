package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"borealis/internal/common/fsutil"
)

// Config holds runtime parameters for the sidecar daemon and embedding hosts.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	HTTP    HTTPConfig    `json:"http" yaml:"http" toml:"http"`
	Sidecar SidecarConfig `json:"sidecar" yaml:"sidecar" toml:"sidecar"`
	IPC     IPCConfig     `json:"ipc" yaml:"ipc" toml:"ipc"`
	CORS    CORSConfig    `json:"cors" yaml:"cors" toml:"cors"`
}

// HTTPConfig configures the MCP HTTP listener.
type HTTPConfig struct {
	Host     string `json:"host" yaml:"host" toml:"host"`
	Port     int    `json:"port" yaml:"port" toml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	Pretty   bool   `json:"log_pretty" yaml:"log_pretty" toml:"log_pretty"`
}

// SidecarConfig configures how a host spawns the sidecar binary.
type SidecarConfig struct {
	Bin            string `json:"bin" yaml:"bin" toml:"bin"`
	StartTimeoutMS int    `json:"start_timeout_ms" yaml:"start_timeout_ms" toml:"start_timeout_ms"`
	StopTimeoutMS  int    `json:"stop_timeout_ms" yaml:"stop_timeout_ms" toml:"stop_timeout_ms"`
}

// IPCConfig tunes the channel between sidecar and host.
type IPCConfig struct {
	CallTimeoutMS int `json:"call_timeout_ms" yaml:"call_timeout_ms" toml:"call_timeout_ms"`
}

// CORSConfig configures cross-origin access for browser-based MCP clients.
type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
