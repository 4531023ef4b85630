package mcpserv

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TestMetricsMiddleware_EmitsRequestCounters verifies that wrapping a handler
// with MetricsMiddleware results in request metrics being exposed via the
// Prometheus /metrics handler.
func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	MetricsMiddleware(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	mrr := httptest.NewRecorder()
	mreq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.Handler().ServeHTTP(mrr, mreq)
	if mrr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", mrr.Code)
	}
	body := mrr.Body.Bytes()
	if !bytes.Contains(body, []byte("borealis_http_requests_total")) {
		previewLen := len(body)
		if previewLen > 200 {
			previewLen = 200
		}
		t.Fatalf("expected to find borealis_http_requests_total in metrics; got: %q", string(body[:previewLen]))
	}
}

// TestToolCallMetrics verifies tools/call round trips are counted with an
// outcome label.
func TestToolCallMetrics(t *testing.T) {
	r := NewMux(&mockService{})
	w := postRPC(t, r, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"probe_tool"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}

	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := mrr.Body.String()
	if !bytes.Contains([]byte(body), []byte(`borealis_mcp_tool_calls_total{outcome="ok",tool="probe_tool"}`)) {
		t.Fatalf("tool call counter missing from metrics")
	}
}

func TestRoutePatternOrPathFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/plain", nil)
	if got := routePatternOrPath(req); got != "/plain" {
		t.Fatalf("routePatternOrPath=%q", got)
	}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 503: "503"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d)=%q want %q", n, got, want)
		}
	}
}
