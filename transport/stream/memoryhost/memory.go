// Package memoryhost is an in-process stream.Host, suitable for tests and for
// peers living in the same process.
package memoryhost

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-peer-go/transport/stream"
)

// Host is an in-memory implementation of stream.Host.
type Host struct {
	mu      sync.Mutex
	streams map[string]*streamData
	counter atomic.Int64
}

type streamData struct {
	events  []event
	wake    chan struct{} // closed and replaced on every publish
	deleted bool
}

type event struct {
	id   string
	data []byte
}

// New returns an empty Host.
func New() *Host {
	return &Host{streams: make(map[string]*streamData)}
}

var _ stream.Host = (*Host)(nil)

// ensureLocked returns the stream at key, creating it. h.mu must be held.
func (h *Host) ensureLocked(key string) *streamData {
	sd, ok := h.streams[key]
	if !ok {
		sd = &streamData{wake: make(chan struct{})}
		h.streams[key] = sd
	}
	return sd
}

// Publish implements stream.Host.
func (h *Host) Publish(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := strconv.FormatInt(h.counter.Add(1), 10)

	h.mu.Lock()
	sd := h.ensureLocked(key)
	sd.events = append(sd.events, event{id: id, data: append([]byte(nil), data...)})
	close(sd.wake)
	sd.wake = make(chan struct{})
	h.mu.Unlock()
	return id, nil
}

// Subscribe implements stream.Host.
func (h *Host) Subscribe(ctx context.Context, key string, lastEventID string, handler stream.Handler) error {
	h.mu.Lock()
	sd := h.ensureLocked(key)
	next := 0
	if lastEventID != "" {
		found := false
		for i, ev := range sd.events {
			if ev.id == lastEventID {
				next, found = i+1, true
				break
			}
		}
		if !found {
			h.mu.Unlock()
			return stream.ErrUnknownEventID
		}
	}
	h.mu.Unlock()

	for {
		h.mu.Lock()
		if sd.deleted {
			h.mu.Unlock()
			return nil
		}
		batch := sd.events[next:]
		wake := sd.wake
		h.mu.Unlock()

		for _, ev := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := handler(ctx, ev.id, ev.data); err != nil {
				return err
			}
		}
		next += len(batch)
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Cleanup implements stream.Host.
func (h *Host) Cleanup(ctx context.Context, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	sd, ok := h.streams[key]
	if !ok {
		return nil
	}
	delete(h.streams, key)
	sd.deleted = true
	close(sd.wake)
	sd.wake = make(chan struct{})
	return nil
}
