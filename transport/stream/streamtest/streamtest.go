// Package streamtest holds the conformance suite every stream.Host
// implementation runs.
package streamtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/mcp-peer-go/transport/stream"
)

// HostFactory creates a new Host instance for testing.
type HostFactory func(t *testing.T) stream.Host

// RunHostTests runs the complete Host test suite against the provided factory.
func RunHostTests(t *testing.T, factory HostFactory) {
	t.Run("Messaging_SubscribeFromBeginningInOrder", func(t *testing.T) { testSubscribeFromBeginning(t, factory) })
	t.Run("Messaging_LiveEventsInOrder", func(t *testing.T) { testLiveEvents(t, factory) })
	t.Run("Messaging_ResumeAfterLastEventID", func(t *testing.T) { testResume(t, factory) })
	t.Run("Messaging_ResumeFromUnknownEventID", func(t *testing.T) { testUnknownEventID(t, factory) })
	t.Run("Messaging_IsolationBetweenKeys", func(t *testing.T) { testIsolation(t, factory) })
	t.Run("Messaging_ContextCancellationEndsSubscription", func(t *testing.T) { testCancellation(t, factory) })
	t.Run("Messaging_HandlerErrorEndsSubscription", func(t *testing.T) { testHandlerError(t, factory) })
	t.Run("Messaging_CleanupDropsEvents", func(t *testing.T) { testCleanup(t, factory) })
}

// uniqueKey keeps runs against a shared backend apart.
func uniqueKey(name string) string { return name + "-" + uuid.NewString() }

type collector struct {
	mu     sync.Mutex
	ids    []string
	events []string
	notify chan struct{}
}

func newCollector() *collector { return &collector{notify: make(chan struct{}, 256)} }

func (c *collector) handle(_ context.Context, id string, data []byte) error {
	c.mu.Lock()
	c.ids = append(c.ids, id)
	c.events = append(c.events, string(data))
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *collector) snapshot() ([]string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...), append([]string(nil), c.events...)
}

func (c *collector) wait(t *testing.T, n int) ([]string, []string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		ids, evs := c.snapshot()
		if len(evs) >= n {
			return ids, evs
		}
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(evs))
		}
	}
}

func subscribe(t *testing.T, h stream.Host, key, last string, c *collector) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- h.Subscribe(ctx, key, last, c.handle) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatalf("subscription did not end after cancellation")
			return nil
		}
	}
}

func publish(t *testing.T, h stream.Host, key string, n, offset int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := range n {
		id, err := h.Publish(t.Context(), key, fmt.Appendf(nil, "m%d", offset+i))
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		if id == "" {
			t.Fatalf("expected non-empty event id")
		}
		ids = append(ids, id)
	}
	return ids
}

func expectEvents(t *testing.T, got []string, from, n int) {
	t.Helper()
	if len(got) != n {
		t.Fatalf("got %d events, want %d: %v", len(got), n, got)
	}
	for i := range n {
		if want := fmt.Sprintf("m%d", from+i); got[i] != want {
			t.Fatalf("event %d = %q, want %q", i, got[i], want)
		}
	}
}

func testSubscribeFromBeginning(t *testing.T, factory HostFactory) {
	h := factory(t)
	key := uniqueKey("begin")
	wantIDs := publish(t, h, key, 5, 0)

	c := newCollector()
	stop := subscribe(t, h, key, "", c)
	defer stop()

	ids, evs := c.wait(t, 5)
	expectEvents(t, evs, 0, 5)
	for i := range wantIDs {
		if ids[i] != wantIDs[i] {
			t.Fatalf("event id %d = %q, want %q", i, ids[i], wantIDs[i])
		}
	}
}

func testLiveEvents(t *testing.T, factory HostFactory) {
	h := factory(t)
	key := uniqueKey("live")

	c := newCollector()
	stop := subscribe(t, h, key, "", c)
	defer stop()

	publish(t, h, key, 20, 0)
	_, evs := c.wait(t, 20)
	expectEvents(t, evs, 0, 20)
}

func testResume(t *testing.T, factory HostFactory) {
	h := factory(t)
	key := uniqueKey("resume")
	ids := publish(t, h, key, 3, 0)
	publish(t, h, key, 2, 3)

	c := newCollector()
	stop := subscribe(t, h, key, ids[2], c)
	defer stop()

	_, evs := c.wait(t, 2)
	expectEvents(t, evs, 3, 2)
}

func testUnknownEventID(t *testing.T, factory HostFactory) {
	h := factory(t)
	key := uniqueKey("unknown")
	publish(t, h, key, 1, 0)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	err := h.Subscribe(ctx, key, "999999999-0", func(context.Context, string, []byte) error { return nil })
	if !errors.Is(err, stream.ErrUnknownEventID) {
		t.Fatalf("expected ErrUnknownEventID, got %v", err)
	}
}

func testIsolation(t *testing.T, factory HostFactory) {
	h := factory(t)
	a, b := uniqueKey("iso-a"), uniqueKey("iso-b")

	ca := newCollector()
	stop := subscribe(t, h, a, "", ca)
	defer stop()

	publish(t, h, b, 3, 100)
	publish(t, h, a, 1, 0)
	ca.wait(t, 1)
	time.Sleep(50 * time.Millisecond)
	_, evs := ca.snapshot()
	expectEvents(t, evs, 0, 1)
}

func testCancellation(t *testing.T, factory HostFactory) {
	h := factory(t)
	key := uniqueKey("cancel")
	c := newCollector()
	stop := subscribe(t, h, key, "", c)
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func testHandlerError(t *testing.T, factory HostFactory) {
	h := factory(t)
	key := uniqueKey("handler-err")
	publish(t, h, key, 3, 0)

	boom := errors.New("boom")
	calls := 0
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	err := h.Subscribe(ctx, key, "", func(context.Context, string, []byte) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times after failing", calls)
	}
}

func testCleanup(t *testing.T, factory HostFactory) {
	h := factory(t)
	key := uniqueKey("cleanup")
	publish(t, h, key, 3, 0)
	if err := h.Cleanup(t.Context(), key); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	publish(t, h, key, 1, 10)

	c := newCollector()
	stop := subscribe(t, h, key, "", c)
	defer stop()
	_, evs := c.wait(t, 1)
	expectEvents(t, evs, 10, 1)
}
