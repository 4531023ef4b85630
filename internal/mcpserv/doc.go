// Package mcpserv exposes the sidecar's HTTP surface: the MCP JSON-RPC
// endpoint plus health, readiness and metrics routes. It is structured into
// small files by concern:
//
//   - server.go: Service interface, router assembly, JSON-RPC method dispatch
//   - logging.go: structured logger hookup and per-request log levels
//   - metrics.go: Prometheus collectors and instrumentation middleware
//   - errors.go: HTTP error payload helpers
//   - config.go: request body limits and CORS options
//   - context.go: base context wiring for coordinated shutdown
//   - swagger.go / swagger_stub.go: optional swagger UI mount (-tags=swagger)
//
// The package is transport only. Tool lookup and execution live behind the
// Service interface; the sidecar binary implements it on top of the IPC
// client so every tools/call round-trips to handlers in the host process.
package mcpserv
