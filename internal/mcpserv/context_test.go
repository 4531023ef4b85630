package mcpserv

import (
	"context"
	"testing"
	"time"
)

func TestSetBaseContext_NilResetsToBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	SetBaseContext(ctx)
	// nolint:staticcheck // SA1012: this test intentionally passes nil to verify fallback behavior
	SetBaseContext(nil)
	if serverBaseCtx != context.Background() {
		t.Fatal("nil did not reset base context")
	}
}

func TestJoinContexts_CancelsWhenEitherDone(t *testing.T) {
	a, ac := context.WithCancel(context.Background())
	b, bc := context.WithCancel(context.Background())
	defer bc()
	j, cancelJ := joinContexts(a, b)
	defer cancelJ()
	ac()
	select {
	case <-j.Done():
		// ok
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel when first parent canceled")
	}
}
