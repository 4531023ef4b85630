// fake_sidecar is a stand-in child process for subprocess tests. It speaks
// the real IPC protocol: dial the channel, authenticate with the token from
// the environment, then serve /healthz so the parent sees it as ready.
//
// Test hooks via environment variables:
//
//	FAKE_SIDECAR_EXIT: print to stderr and exit non-zero before anything else
//	FAKE_SIDECAR_HANG: sleep without ever becoming ready
//	FAKE_SIDECAR_CALL: invoke the named host tool once after authenticating
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"borealis/internal/ipc"
)

func main() {
	var channel, host, port, logLevel string
	flag.StringVar(&channel, "channel", "", "ipc channel name")
	flag.StringVar(&host, "host", "127.0.0.1", "http host")
	flag.StringVar(&port, "port", "0", "http port")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.Parse()
	_ = logLevel

	if os.Getenv("FAKE_SIDECAR_EXIT") != "" {
		fmt.Fprintln(os.Stderr, "fake sidecar: refusing to start")
		os.Exit(3)
	}
	if os.Getenv("FAKE_SIDECAR_HANG") != "" {
		time.Sleep(time.Hour)
	}

	client, err := ipc.Dial(ipc.ClientConfig{
		Channel: channel,
		Token:   os.Getenv(ipc.TokenEnv),
	})
	if err != nil {
		log.Fatalf("dial ipc: %v", err)
	}
	if err := client.Authenticate(context.Background()); err != nil {
		log.Fatalf("authenticate: %v", err)
	}

	if tool := os.Getenv("FAKE_SIDECAR_CALL"); tool != "" {
		if _, err := client.Call(context.Background(), tool, map[string]any{"from": "child"}); err != nil {
			fmt.Fprintf(os.Stderr, "tool call failed: %v\n", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/tools", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(client.Tools())
	})

	srv := &http.Server{Addr: host + ":" + port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-sigCh:
	case <-client.Done():
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
