package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// HealthResponse reports sidecar readiness for GET /healthz.
type HealthResponse struct {
	// Either "ok" or "starting".
	// example: ok
	Status string `json:"status" example:"ok"`
	// Channel name of the IPC endpoint this sidecar is bridged to.
	// example: borealis_mcp_12345_9f86d081_884c_4bd6
	Channel string `json:"channel,omitempty" example:"borealis_mcp_12345_9f86d081_884c_4bd6"`
}

// ToolSpec describes one registered tool. It is the entry shipped to the
// sidecar over the IPC channel and listed to MCP clients over HTTP; handlers
// never leave the host process.
type ToolSpec struct {
	// Tool name, unique within one sidecar.
	// example: select_object
	Name string `json:"name" example:"select_object"`
	// Human-readable description shown to MCP clients.
	// example: Select an object in the host scene by name.
	Description string `json:"description" example:"Select an object in the host scene by name."`
	// JSON Schema for the tool arguments. Nil means "object with no
	// declared properties".
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}
