// Package transport defines the narrow contract every message channel
// beneath a protocol session satisfies, plus Lifecycle, an embeddable guard
// implementing the Created → Started → Closed state machine.
//
// A Transport moves opaque, already-encoded JSON-RPC envelopes. It never
// inspects them beyond what its framing requires. Implementations:
//
//   - transport/stdio: newline-delimited JSON over a byte stream (reference)
//   - transport/ws: one envelope per WebSocket text frame
//   - transport/stream: session-oriented resumable streams over a Host
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
)

var (
	// ErrAlreadyStarted is returned by Start on a transport that was started before.
	ErrAlreadyStarted = errors.New("transport already started")
	// ErrNotStarted is returned by Send before Start.
	ErrNotStarted = errors.New("transport not started")
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
)

// Transport delivers opaque messages over a channel.
//
// Messages passed to Send in a given order are written to the channel in that
// order. OnClose fires exactly once per lifetime regardless of whether the
// shutdown was initiated locally, by the peer or by an I/O failure.
type Transport interface {
	// Start begins reading. It fails with ErrAlreadyStarted when called twice.
	Start(ctx context.Context) error
	// Send writes one message. It may block while an outbound queue is full.
	Send(ctx context.Context, msg jsonrpc.Message, opts ...SendOption) error
	// Close shuts the transport down. It is idempotent.
	Close() error
	// SetHandlers installs the callbacks. It must be called before Start.
	SetHandlers(h Handlers)
}

// Handlers are the callbacks a transport reports through. Nil fields are
// ignored.
type Handlers struct {
	OnMessage func(msg jsonrpc.Message)
	OnClose   func()
	OnError   func(err error)
}

// SendOptions is the resolved form of a set of SendOption values.
type SendOptions struct {
	// RelatedRequest is the id of the inbound request a message answers or
	// belongs to, when there is one.
	RelatedRequest *jsonrpc.RequestID
}

// SendOption configures a single Send call.
type SendOption func(*SendOptions)

// WithRelatedRequest lets session-oriented transports route a message
// alongside the request it relates to.
func WithRelatedRequest(id *jsonrpc.RequestID) SendOption {
	return func(o *SendOptions) { o.RelatedRequest = id }
}

// ApplySendOptions resolves opts.
func ApplySendOptions(opts ...SendOption) SendOptions {
	var o SendOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FrameError reports an inbound unit that could not be turned into a
// message. The transport stays up unless it also reports ErrFrameTooLarge or
// a similar unrecoverable condition.
type FrameError struct {
	Frame []byte
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed frame (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }
