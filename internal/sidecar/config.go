package sidecar

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultBin          = "borealis-mcp"
	defaultHost         = "127.0.0.1"
	defaultLogLevel     = "info"
	defaultStartTimeout = 15 * time.Second
	defaultStopTimeout  = 3 * time.Second
)

// Config encapsulates all tunables for Sidecar construction.
type Config struct {
	// Bin is the sidecar executable. A path is used as given; a bare name
	// is looked up next to the current executable first, then via PATH.
	// Empty selects the default name borealis-mcp. Building and shipping
	// the binary is the embedder's packaging concern; the manager only
	// verifies it is discoverable.
	Bin string
	// Host for the child's HTTP endpoint.
	Host string
	// Port for the child's HTTP endpoint; 0 picks a free port per start.
	Port int
	// LogLevel is passed through to the child.
	LogLevel string
	// StartTimeout bounds the wait for child readiness.
	StartTimeout time.Duration
	// StopTimeout bounds the graceful-terminate window before force kill.
	StopTimeout time.Duration
	// Publisher receives lifecycle events; nil drops them.
	Publisher EventPublisher
	// Logger defaults to a no-op logger.
	Logger zerolog.Logger
}
