package protocol

import (
	"sync"
	"time"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
)

type outcome struct {
	resp *jsonrpc.Response
	err  error
}

// pendingCall is an outgoing request awaiting its terminal outcome. Whoever
// removes it from the registry owns the outcome and is the only writer of ch.
type pendingCall struct {
	method     string
	id         *jsonrpc.RequestID
	started    time.Time
	ch         chan outcome
	onProgress func(mcp.ProgressNotificationParams)
	progressed chan struct{}
}

func newPendingCall(method string, id *jsonrpc.RequestID, onProgress func(mcp.ProgressNotificationParams)) *pendingCall {
	return &pendingCall{
		method:     method,
		id:         id,
		started:    time.Now(),
		ch:         make(chan outcome, 1),
		onProgress: onProgress,
		progressed: make(chan struct{}, 1),
	}
}

func (c *pendingCall) progress(p mcp.ProgressNotificationParams) {
	if c.onProgress != nil {
		c.onProgress(p)
	}
	select {
	case c.progressed <- struct{}{}:
	default:
	}
}

// registry tracks in-flight outgoing requests keyed by RequestID.Key().
type registry struct {
	mu     sync.Mutex
	calls  map[string]*pendingCall
	closed error
}

func newRegistry() *registry {
	return &registry{calls: make(map[string]*pendingCall)}
}

func (r *registry) add(c *pendingCall) error {
	key := c.id.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed != nil {
		return r.closed
	}
	if _, dup := r.calls[key]; dup {
		return ErrDuplicateRequestID
	}
	r.calls[key] = c
	return nil
}

// take removes and returns the call for key.
func (r *registry) take(key string) (*pendingCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[key]
	if ok {
		delete(r.calls, key)
	}
	return c, ok
}

func (r *registry) get(key string) (*pendingCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[key]
	return c, ok
}

// closeAll refuses further registrations and hands every pending call to the
// caller for resolution.
func (r *registry) closeAll(err error) []*pendingCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed == nil {
		r.closed = err
	}
	out := make([]*pendingCall, 0, len(r.calls))
	for key, c := range r.calls {
		delete(r.calls, key)
		out = append(out, c)
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
