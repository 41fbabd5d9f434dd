// Package stream is a session-oriented transport that carries envelopes over
// durable, ordered per-key event streams provided by a Host. Each session has
// one inbox stream per side. A side that loses its connection can come back
// with Resume and continue right after the last event it saw.
//
// The session identifier travels out of band; HTTP front ends use the
// SessionIDHeader header for it.
package stream

import (
	"context"
	"errors"
)

// SessionIDHeader is the header carrying the session identifier.
const SessionIDHeader = "Mcp-Session-Id"

// ErrUnknownEventID is returned by Host.Subscribe when lastEventID does not
// name an event of the stream.
var ErrUnknownEventID = errors.New("stream: unknown last event id")

// Handler receives one event. Returning an error ends the subscription with
// that error.
type Handler func(ctx context.Context, eventID string, data []byte) error

// Host stores ordered per-key event streams.
type Host interface {
	// Publish appends data to the stream at key and returns its event id.
	Publish(ctx context.Context, key string, data []byte) (eventID string, err error)
	// Subscribe delivers events of key in order, starting at the beginning
	// of the stream or right after lastEventID. It blocks until ctx is done,
	// the handler fails or the stream is cleaned up.
	Subscribe(ctx context.Context, key string, lastEventID string, h Handler) error
	// Cleanup deletes the stream at key and ends its subscriptions.
	Cleanup(ctx context.Context, key string) error
}
