package ipc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ChannelPrefix namespaces every channel so stale sockets are recognizable in
// a temp directory listing.
const ChannelPrefix = "borealis_mcp"

// TokenEnv is the environment variable carrying the auth token from host to
// child. The token travels in the environment, never in argv, so a process
// listing does not leak it.
const TokenEnv = "BOREALIS_MCP_TOKEN"

// NewChannelName returns a channel name of the form
// borealis_mcp_<pid>_<a>_<b>_<c>. The embedded PID separates hosts running
// concurrently on one machine; the random segments separate instances within
// a host, so repeated calls in one process never collide either.
func NewChannelName() string {
	parts := strings.SplitN(uuid.NewString(), "-", 4)
	return fmt.Sprintf("%s_%d_%s_%s_%s", ChannelPrefix, os.Getpid(), parts[0], parts[1], parts[2])
}

// NewAuthToken returns a 64-character hex token from the OS entropy source.
func NewAuthToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SocketPath maps a channel name to its unix socket path. Channel names are
// kept short because unix socket paths are limited to roughly 104 bytes on
// some platforms.
func SocketPath(channel string) string {
	return filepath.Join(os.TempDir(), channel+".sock")
}
