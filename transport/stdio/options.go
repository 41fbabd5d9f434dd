package stdio

import (
	"io"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-peer-go/transport/classify"
)

// Option customizes a Transport.
type Option func(*Transport)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// WithQueueSize bounds the outbound queue. Send blocks while it is full.
func WithQueueSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.queueSize = n
		}
	}
}

// WithMaxMessageSize bounds the size of a single inbound document.
func WithMaxMessageSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxMessage = n
		}
	}
}

// WithReadChunkSize sets the size of each raw read.
func WithReadChunkSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.chunkSize = n
		}
	}
}

// WithDrainTimeout bounds how long shutdown waits for queued messages to be
// written before the output stream is closed regardless.
func WithDrainTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.drainTimeout = d
		}
	}
}

// WithoutClosingStreams leaves the reader and writer open on shutdown.
func WithoutClosingStreams() Option {
	return func(t *Transport) { t.closeStreams = false }
}

// WithSideChannel monitors r line by line using c. A nil classifier means
// classify.Default().
func WithSideChannel(r io.Reader, c classify.Classifier) Option {
	return func(t *Transport) {
		t.side = r
		if c != nil {
			t.classifier = c
		}
	}
}

// WithClassifier replaces the side-channel classifier without changing the
// side channel itself. Useful with Command, which wires the child's stderr.
func WithClassifier(c classify.Classifier) Option {
	return func(t *Transport) {
		if c != nil {
			t.classifier = c
		}
	}
}

// WithProcessGrace sets how long Command waits for the child to exit after
// its stdin is closed before killing it.
func WithProcessGrace(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.processGrace = d
		}
	}
}
