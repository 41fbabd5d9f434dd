package transport

import (
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
)

const (
	stateCreated int32 = iota
	stateStarted
	stateClosed
)

// Lifecycle is the state guard shared by the bundled transports. The zero
// value is ready to use.
type Lifecycle struct {
	state      atomic.Int32
	closeFired atomic.Bool

	mu sync.RWMutex
	h  Handlers
}

// SetHandlers stores the callbacks reported through Deliver, FireError and
// FireClose.
func (l *Lifecycle) SetHandlers(h Handlers) {
	l.mu.Lock()
	l.h = h
	l.mu.Unlock()
}

func (l *Lifecycle) handlers() Handlers {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.h
}

// MarkStarted moves Created → Started.
func (l *Lifecycle) MarkStarted() error {
	if l.state.CompareAndSwap(stateCreated, stateStarted) {
		return nil
	}
	if l.state.Load() == stateClosed {
		return ErrClosed
	}
	return ErrAlreadyStarted
}

// MarkClosed moves to Closed. It returns true for exactly one caller, which
// owns the shutdown.
func (l *Lifecycle) MarkClosed() bool {
	for {
		s := l.state.Load()
		if s == stateClosed {
			return false
		}
		if l.state.CompareAndSwap(s, stateClosed) {
			return true
		}
	}
}

// Started reports whether Start succeeded and Close has not been called.
func (l *Lifecycle) Started() bool { return l.state.Load() == stateStarted }

// Closed reports whether the transport entered its terminal state.
func (l *Lifecycle) Closed() bool { return l.state.Load() == stateClosed }

// CheckSend returns the error Send should fail with in the current state, if
// any.
func (l *Lifecycle) CheckSend() error {
	switch l.state.Load() {
	case stateCreated:
		return ErrNotStarted
	case stateClosed:
		return ErrClosed
	}
	return nil
}

// Deliver hands an inbound message to OnMessage.
func (l *Lifecycle) Deliver(msg jsonrpc.Message) {
	if h := l.handlers(); h.OnMessage != nil {
		h.OnMessage(msg)
	}
}

// FireError reports err through OnError.
func (l *Lifecycle) FireError(err error) {
	if h := l.handlers(); h.OnError != nil && err != nil {
		h.OnError(err)
	}
}

// FireClose invokes OnClose the first time it is called and is a no-op
// afterwards.
func (l *Lifecycle) FireClose() {
	if !l.closeFired.CompareAndSwap(false, true) {
		return
	}
	if h := l.handlers(); h.OnClose != nil {
		h.OnClose()
	}
}
