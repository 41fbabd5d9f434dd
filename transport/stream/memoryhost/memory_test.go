package memoryhost

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/mcp-peer-go/transport/stream"
	"github.com/ggoodman/mcp-peer-go/transport/stream/streamtest"
)

func TestMemoryHost(t *testing.T) {
	streamtest.RunHostTests(t, func(t *testing.T) stream.Host { return New() })
}

func TestCleanupEndsSubscription(t *testing.T) {
	h := New()
	done := make(chan error, 1)
	go func() {
		done <- h.Subscribe(t.Context(), "k", "", func(context.Context, string, []byte) error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)
	if err := h.Cleanup(t.Context(), "k"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after cleanup, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription survived cleanup")
	}
}
