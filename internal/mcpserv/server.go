package mcpserv

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"borealis/pkg/types"
)

const (
	// ServerName identifies this server to MCP clients.
	ServerName = "borealis-mcp"
	// ServerVersion is reported in initialize responses.
	ServerVersion = "0.1.0"
)

// protocolVersions lists the MCP protocol revisions this server accepts,
// newest first. Unknown client versions negotiate down to the newest.
var protocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

func negotiateVersion(requested string) string {
	for _, v := range protocolVersions {
		if v == requested {
			return v
		}
	}
	return protocolVersions[0]
}

// Service defines the methods required by the HTTP layer. The sidecar binary
// implements it on top of the IPC client; tests use fakes.
type Service interface {
	Tools() []types.ToolSpec
	Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	Ready() bool
	Channel() string
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	// Single MCP endpoint, POST only. GET is how streamable-HTTP clients
	// open a server event stream; this server never initiates messages, so
	// chi's 405 on GET/DELETE is the correct answer.
	r.Post("/mcp", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		// Limit body size (configurable, default 1MiB)
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "unable to read request body")
			return
		}
		lvl := requestLogLevel(r)
		if lvl >= LevelDebug {
			if zlog != nil {
				zlog.Debug().Str("body", string(body)).Msg("rpc recv")
			} else {
				log.Printf("rpc> %s", string(body))
			}
		}

		var req types.JSONRPCRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeRPCError(w, http.StatusBadRequest, nil, -32700, "Parse error")
			return
		}
		if req.JSONRPC != "2.0" {
			writeRPCError(w, http.StatusBadRequest, req.ID, -32600, "Invalid Request")
			return
		}
		if req.ID == nil {
			// Notification: nothing to answer.
			if lvl >= LevelDebug {
				if zlog != nil {
					zlog.Debug().Str("method", req.Method).Msg("notification received")
				} else {
					log.Printf("notification method=%s", req.Method)
				}
			}
			w.WriteHeader(http.StatusAccepted)
			return
		}

		start := time.Now()
		switch req.Method {
		case "initialize":
			handleInitialize(w, req)
		case "ping":
			writeRPCResult(w, req.ID, struct{}{})
		case "tools/list":
			handleToolsList(w, svc, req)
		case "tools/call":
			handleToolsCall(w, r, svc, req)
		default:
			writeRPCError(w, http.StatusOK, req.ID, -32601, "Method not found")
		}
		if lvl >= LevelInfo {
			if zlog != nil {
				z := zlog.Info().Str("method", req.Method).Dur("dur", time.Since(start))
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Msg("rpc")
			} else {
				log.Printf("rpc method=%s dur=%s", req.Method, time.Since(start))
			}
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !svc.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(types.HealthResponse{Status: "starting"})
			return
		}
		_ = json.NewEncoder(w).Encode(types.HealthResponse{Status: "ok", Channel: svc.Channel()})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("bridging"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func handleInitialize(w http.ResponseWriter, req types.JSONRPCRequest) {
	var params types.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeRPCError(w, http.StatusOK, req.ID, -32602, "Invalid params")
			return
		}
	}
	writeRPCResult(w, req.ID, types.InitializeResult{
		ProtocolVersion: negotiateVersion(params.ProtocolVersion),
		Capabilities:    types.Capability{Tools: &types.ToolCapability{}},
		ServerInfo:      types.ServerInfo{Name: ServerName, Version: ServerVersion},
		Instructions:    "Tools execute inside the host application this sidecar is attached to.",
	})
}

func handleToolsList(w http.ResponseWriter, svc Service, req types.JSONRPCRequest) {
	tools := svc.Tools()
	if tools == nil {
		tools = []types.ToolSpec{}
	}
	writeRPCResult(w, req.ID, types.ToolsListResult{Tools: tools})
}

func handleToolsCall(w http.ResponseWriter, r *http.Request, svc Service, req types.JSONRPCRequest) {
	var params types.ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || strings.TrimSpace(params.Name) == "" {
		writeRPCError(w, http.StatusOK, req.ID, -32602, "Invalid params")
		return
	}
	// Join server base context with request context so shutdown cancels work too.
	joined, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	start := time.Now()
	raw, err := svc.Call(joined, params.Name, params.Arguments)
	if err != nil {
		// If context was canceled (client disconnect), just return.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			observeToolCall(params.Name, "canceled", time.Since(start))
			return
		}
		// Session-level faults carry their own status.
		if he, ok := err.(HTTPError); ok {
			observeToolCall(params.Name, "unavailable", time.Since(start))
			writeJSONError(w, he.StatusCode(), he.Error())
			return
		}
		observeToolCall(params.Name, "error", time.Since(start))
		// Tool failures ride inside the result so clients can surface them
		// to the model; the error member is reserved for protocol faults.
		writeRPCResult(w, req.ID, types.ToolCallResult{
			Content: []types.ContentItem{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
		return
	}
	observeToolCall(params.Name, "ok", time.Since(start))
	writeRPCResult(w, req.ID, types.ToolCallResult{
		Content: []types.ContentItem{{Type: "text", Text: string(raw)}},
	})
}

func writeRPC(w http.ResponseWriter, status int, resp types.JSONRPCResponse) {
	resp.JSONRPC = "2.0"
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCResult(w http.ResponseWriter, id any, result any) {
	writeRPC(w, http.StatusOK, types.JSONRPCResponse{ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, status int, id any, code int, message string) {
	writeRPC(w, status, types.JSONRPCResponse{ID: id, Error: &types.RPCError{Code: code, Message: message}})
}
