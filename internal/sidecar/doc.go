// Package sidecar manages an out-of-process MCP tool server. The manager owns
// the child's lifecycle and the authenticated IPC bridge back into the host.
// It is structured into small files by concern:
//
//   - config.go: Config and package defaults
//   - sidecar.go: the Sidecar manager (spawn, readiness, stop, liveness)
//   - manifest.go: YAML tool manifest loading
//   - events.go: lifecycle event types and publisher interface
//   - eventpub_memory.go: in-memory publisher for tests
//   - errors.go: error types and helpers (IsBinaryNotFound, IsStartTimeout)
//
// A Sidecar is constructed stopped; its channel name and auth token are fixed
// at construction and survive restarts. The host registers tool handlers,
// calls Start to spawn the prebuilt executable, and the child dials back over
// the channel, authenticates with the shared token, and proxies MCP tool
// calls to the registered handlers. The sidecar stays responsive even when
// the host's main thread is busy; only tool dispatch crosses back into the
// host.
package sidecar
