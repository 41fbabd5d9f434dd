// Package transporttest holds a conformance suite shared by the bundled
// transport implementations.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/transport"
)

// PairFactory creates two connected, unstarted transports. Whatever one side
// sends, the other receives.
type PairFactory func(t *testing.T) (a, b transport.Transport)

// RunTransportTests runs the complete Transport test suite against the
// provided factory.
func RunTransportTests(t *testing.T, factory PairFactory) {
	t.Run("Lifecycle_StartTwiceFails", func(t *testing.T) { testStartTwice(t, factory) })
	t.Run("Lifecycle_SendBeforeStartFails", func(t *testing.T) { testSendBeforeStart(t, factory) })
	t.Run("Lifecycle_SendAfterCloseFails", func(t *testing.T) { testSendAfterClose(t, factory) })
	t.Run("Lifecycle_ConcurrentCloseFiresOnce", func(t *testing.T) { testConcurrentClose(t, factory) })
	t.Run("Lifecycle_PeerCloseObserved", func(t *testing.T) { testPeerClose(t, factory) })
	t.Run("Messaging_OrderPreserved", func(t *testing.T) { testOrderPreserved(t, factory) })
}

// Recorder collects transport callbacks for assertions.
type Recorder struct {
	mu       sync.Mutex
	messages []jsonrpc.Message
	errs     []error
	closes   atomic.Int32
	msgCh    chan struct{}
	closedCh chan struct{}
	once     sync.Once
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{msgCh: make(chan struct{}, 1024), closedCh: make(chan struct{})}
}

// Handlers returns callbacks that feed the recorder.
func (r *Recorder) Handlers() transport.Handlers {
	return transport.Handlers{
		OnMessage: func(msg jsonrpc.Message) {
			r.mu.Lock()
			r.messages = append(r.messages, append(jsonrpc.Message(nil), msg...))
			r.mu.Unlock()
			select {
			case r.msgCh <- struct{}{}:
			default:
			}
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnClose: func() {
			r.closes.Add(1)
			r.once.Do(func() { close(r.closedCh) })
		},
	}
}

// Messages returns a copy of the messages received so far.
func (r *Recorder) Messages() []jsonrpc.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jsonrpc.Message(nil), r.messages...)
}

// Errors returns a copy of the errors reported so far.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// CloseCount reports how many times OnClose fired.
func (r *Recorder) CloseCount() int { return int(r.closes.Load()) }

// Closed is closed once OnClose fires.
func (r *Recorder) Closed() <-chan struct{} { return r.closedCh }

// WaitMessages blocks until at least n messages arrived or the timeout passes.
func (r *Recorder) WaitMessages(t *testing.T, n int, timeout time.Duration) []jsonrpc.Message {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if msgs := r.Messages(); len(msgs) >= n {
			return msgs
		}
		select {
		case <-r.msgCh:
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages, got %d", n, len(r.Messages()))
			return nil
		}
	}
}

// WaitClosed blocks until OnClose fires or the timeout passes.
func (r *Recorder) WaitClosed(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.closedCh:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for OnClose")
	}
}

func start(t *testing.T, tr transport.Transport, rec *Recorder) {
	t.Helper()
	tr.SetHandlers(rec.Handlers())
	if err := tr.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
}

func msg(i int) jsonrpc.Message {
	return jsonrpc.Message(fmt.Sprintf(`{"jsonrpc":"2.0","method":"test/seq","params":{"n":%d}}`, i))
}

func testStartTwice(t *testing.T, factory PairFactory) {
	a, b := factory(t)
	start(t, a, NewRecorder())
	start(t, b, NewRecorder())
	if err := a.Start(t.Context()); !errors.Is(err, transport.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func testSendBeforeStart(t *testing.T, factory PairFactory) {
	a, b := factory(t)
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	if err := a.Send(t.Context(), msg(0)); err == nil {
		t.Fatalf("expected send before start to fail")
	}
}

func testSendAfterClose(t *testing.T, factory PairFactory) {
	a, b := factory(t)
	start(t, a, NewRecorder())
	start(t, b, NewRecorder())
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Send(t.Context(), msg(0)); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func testConcurrentClose(t *testing.T, factory PairFactory) {
	a, b := factory(t)
	recA := NewRecorder()
	start(t, a, recA)
	start(t, b, NewRecorder())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Close()
		}()
	}
	wg.Wait()
	recA.WaitClosed(t, 5*time.Second)
	// Allow any stray late callbacks to land before counting.
	time.Sleep(20 * time.Millisecond)
	if got := recA.CloseCount(); got != 1 {
		t.Fatalf("OnClose fired %d times, want 1", got)
	}
}

func testPeerClose(t *testing.T, factory PairFactory) {
	a, b := factory(t)
	recB := NewRecorder()
	start(t, a, NewRecorder())
	start(t, b, recB)

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	recB.WaitClosed(t, 5*time.Second)
	if got := recB.CloseCount(); got != 1 {
		t.Fatalf("peer OnClose fired %d times, want 1", got)
	}
}

func testOrderPreserved(t *testing.T, factory PairFactory) {
	a, b := factory(t)
	recB := NewRecorder()
	start(t, a, NewRecorder())
	start(t, b, recB)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	const n = 100
	for i := range n {
		if err := a.Send(ctx, msg(i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	got := recB.WaitMessages(t, n, 5*time.Second)
	for i := range n {
		if string(got[i]) != string(msg(i)) {
			t.Fatalf("message %d out of order: %s", i, got[i])
		}
	}
}
