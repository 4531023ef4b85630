// Package ipc implements the local socket channel between a host process and
// its MCP sidecar. The host side listens (Server), the sidecar side dials
// (Client); messages are newline-delimited JSON envelopes. A connection is
// inert until the client has presented the shared auth token: the server
// answers the handshake, pushes the current tool table, and only then
// dispatches tool calls.
//
// Files:
//   - protocol.go: wire envelope and payload types
//   - channel.go: channel naming, auth token generation, socket paths
//   - server.go: host-side listener, handshake, per-call dispatch
//   - client.go: sidecar-side connection, request/response correlation
//   - errors.go: typed errors and predicates
package ipc

import (
	"encoding/json"

	"borealis/pkg/types"
)

// MessageType identifies the payload carried by a Message envelope.
type MessageType string

const (
	MessageTypeAuth      MessageType = "auth"
	MessageTypeAuthAck   MessageType = "authAck"
	MessageTypeTools     MessageType = "tools"
	MessageTypeToolCall  MessageType = "toolCall"
	MessageTypeToolReply MessageType = "toolReply"
)

// Message is the wire envelope. Exactly one payload pointer is set, matching
// Type. ID correlates a request with its reply (auth/authAck,
// toolCall/toolReply); unsolicited messages such as tools carry none.
type Message struct {
	ID        string           `json:"id,omitempty"`
	Type      MessageType      `json:"type"`
	Auth      *AuthRequest     `json:"auth,omitempty"`
	AuthAck   *AuthAck         `json:"authAck,omitempty"`
	Tools     *ToolsUpdate     `json:"tools,omitempty"`
	ToolCall  *ToolCallRequest `json:"toolCall,omitempty"`
	ToolReply *ToolCallReply   `json:"toolReply,omitempty"`
}

// AuthRequest is the first message a client must send. PID identifies the
// sidecar process for logging only; the token is what grants access.
type AuthRequest struct {
	Token string `json:"token"`
	PID   int    `json:"pid,omitempty"`
}

// AuthAck answers an AuthRequest. A rejected client should expect the server
// to drop the connection right after.
type AuthAck struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// ToolsUpdate carries the host's tool table, sent once after a successful
// handshake. The set is fixed for the lifetime of a sidecar run.
type ToolsUpdate struct {
	Tools []types.ToolSpec `json:"tools"`
}

// ToolCallRequest asks the host to run a registered tool handler.
type ToolCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolCallReply carries the handler outcome. Error is set instead of Result
// when the handler failed or the tool is unknown.
type ToolCallReply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
