package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/mcp-peer-go/internal/logctx"
	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
	"github.com/ggoodman/mcp-peer-go/transport"
)

// Capabilities is the constraint satisfied by both capability documents.
type Capabilities[T any] interface {
	mcp.ClientCapabilities | mcp.ServerCapabilities
	Has(c mcp.Capability) bool
	Clone() T
}

// State is the negotiation state of a session.
type State int32

const (
	StateUninitialized State = iota
	StateNegotiating
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is one side of a connection. L is the local capability document
// and R the peer's. Use NewClient or NewServer.
type Session[L Capabilities[L], R Capabilities[R]] struct {
	t     transport.Transport
	rules roleRules
	info  mcp.ImplementationInfo
	local L
	cfg   config
	log   *slog.Logger
	id    string

	state atomic.Int32

	mu               sync.RWMutex
	peer             R
	hasPeer          bool
	peerInfo         mcp.ImplementationInfo
	peerInstructions string
	protocolVersion  string
	threshold        mcp.LoggingLevel
	handlers         map[string]*handlerEntry
	inflight         map[string]context.CancelCauseFunc

	pending *registry
	nextID  atomic.Int64

	inbound  chan jsonrpc.Message
	notifyQ  *notifyQueue
	outbound chan outboundMsg

	ctx         context.Context
	cancel      context.CancelFunc
	closing     chan struct{}
	closingOnce sync.Once
	done        chan struct{}
	finishOnce  sync.Once
	outDone     chan struct{}
	closeErr    error
}

// ClientSession is the client side: it declares client capabilities and
// negotiates against a server's.
type ClientSession = Session[mcp.ClientCapabilities, mcp.ServerCapabilities]

// ServerSession is the server side.
type ServerSession = Session[mcp.ServerCapabilities, mcp.ClientCapabilities]

type outboundMsg struct {
	data jsonrpc.Message
	opts []transport.SendOption
}

// NewClient creates a client session over t. Call Start and then Initialize.
func NewClient(t transport.Transport, info mcp.ImplementationInfo, caps mcp.ClientCapabilities, opts ...Option) *ClientSession {
	s := newSession[mcp.ClientCapabilities, mcp.ServerCapabilities](t, clientRules, info, caps.Clone(), opts)
	return s
}

// NewServer creates a server session over t. The client drives the
// handshake after Start.
func NewServer(t transport.Transport, info mcp.ImplementationInfo, caps mcp.ServerCapabilities, opts ...Option) *ServerSession {
	s := newSession[mcp.ServerCapabilities, mcp.ClientCapabilities](t, serverRules, info, caps.Clone(), opts)
	s.installBuiltin(mcp.InitializeMethod, "", serverInitialize(s))
	if caps.Has(mcp.CapabilityLogging) {
		s.installBuiltin(mcp.LoggingSetLevelMethod, mcp.CapabilityLogging, s.handleSetLevel)
	}
	return s
}

func newSession[L Capabilities[L], R Capabilities[R]](t transport.Transport, rules roleRules, info mcp.ImplementationInfo, local L, opts []Option) *Session[L, R] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	id := cfg.sessionID
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session[L, R]{
		t:         t,
		rules:     rules,
		info:      info,
		local:     local,
		cfg:       cfg,
		log:       slog.New(logctx.Wrap(cfg.log.Handler())).With(slog.String("session_id", id)),
		id:        id,
		threshold: mcp.LoggingLevelDebug,
		handlers:  make(map[string]*handlerEntry),
		inflight:  make(map[string]context.CancelCauseFunc),
		pending:   newRegistry(),
		inbound:   make(chan jsonrpc.Message, cfg.inboundSize),
		notifyQ:   newNotifyQueue(),
		outbound:  make(chan outboundMsg, cfg.outboundSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		outDone:   make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.installBuiltin(mcp.PingMethod, "", func(context.Context, json.RawMessage) (any, error) {
		return mcp.EmptyResult{}, nil
	})
	return s
}

// ID identifies the session in logs.
func (s *Session[L, R]) ID() string { return s.id }

// Role returns RoleClient or RoleServer.
func (s *Session[L, R]) Role() string { return s.rules.name }

// State returns the current negotiation state.
func (s *Session[L, R]) State() State { return State(s.state.Load()) }

// LocalCapabilities returns the capabilities this side declared.
func (s *Session[L, R]) LocalCapabilities() L { return s.local.Clone() }

// PeerCapabilities returns the negotiated peer document. ok is false until
// the handshake completes.
func (s *Session[L, R]) PeerCapabilities() (caps R, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer.Clone(), s.hasPeer
}

// PeerInfo returns the peer's implementation info once negotiated.
func (s *Session[L, R]) PeerInfo() mcp.ImplementationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerInfo
}

// Instructions returns the instructions the server sent during the
// handshake. Only clients receive them.
func (s *Session[L, R]) Instructions() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerInstructions
}

// ProtocolVersion returns the negotiated protocol version.
func (s *Session[L, R]) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// PendingCount reports how many outgoing requests await an outcome.
func (s *Session[L, R]) PendingCount() int { return s.pending.len() }

// Done is closed once the session is closed.
func (s *Session[L, R]) Done() <-chan struct{} { return s.done }

// Err returns the error that closed the session, or nil while it is open.
func (s *Session[L, R]) Err() error {
	select {
	case <-s.done:
		return s.closeErr
	default:
		return nil
	}
}

// Start wires the transport callbacks, launches the dispatch loops and
// starts the transport.
func (s *Session[L, R]) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateNegotiating)) {
		return ErrAlreadyStarted
	}
	s.t.SetHandlers(transport.Handlers{
		OnMessage: s.onMessage,
		OnClose:   s.onTransportClose,
		OnError:   s.onTransportError,
	})
	go s.inboundLoop()
	go s.notificationLoop()
	go s.outboundLoop()

	if err := s.t.Start(ctx); err != nil {
		terr := &TransportError{Op: "start", Err: err}
		s.finish(terr)
		return terr
	}
	s.log.DebugContext(s.logContext(ctx), "session.start")
	return nil
}

// Close flushes queued messages, closes the transport and fails every
// pending request with a *TransportError.
func (s *Session[L, R]) Close() error {
	started := s.State() != StateUninitialized
	s.closingOnce.Do(func() { close(s.closing) })
	if started {
		select {
		case <-s.outDone:
		case <-time.After(s.cfg.drainTimeout):
			s.log.Warn("session.close.drain_timeout")
		}
	}
	err := s.t.Close()
	s.finish(connectionClosed("close"))
	return err
}

func (s *Session[L, R]) closeWith(cause *TransportError) {
	s.closingOnce.Do(func() { close(s.closing) })
	_ = s.t.Close()
	s.finish(cause)
}

// finish moves the session to its terminal state exactly once.
func (s *Session[L, R]) finish(cause *TransportError) {
	s.finishOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.closeErr = cause
		close(s.done)
		s.cancel()
		calls := s.pending.closeAll(cause)
		for _, c := range calls {
			c.ch <- outcome{err: cause}
		}
		s.log.Info("session.closed", slog.Int("failed_pending", len(calls)), slog.String("cause", cause.Error()))
	})
}

func (s *Session[L, R]) onMessage(msg jsonrpc.Message) {
	select {
	case s.inbound <- msg:
	case <-s.done:
	}
}

func (s *Session[L, R]) onTransportClose() {
	s.finish(connectionClosed("receive"))
}

func (s *Session[L, R]) onTransportError(err error) {
	s.log.Warn("session.transport.error", slog.String("err", err.Error()))
	s.report(err)
}

func (s *Session[L, R]) report(err error) {
	if s.cfg.errorSink != nil && err != nil {
		s.cfg.errorSink(err)
	}
}

// enqueue hands a message to the outbound loop, blocking while the queue is
// full.
func (s *Session[L, R]) enqueue(ctx context.Context, m outboundMsg) error {
	select {
	case <-s.closing:
		return connectionClosed("send")
	case <-s.done:
		return connectionClosed("send")
	default:
	}
	select {
	case s.outbound <- m:
		return nil
	case <-s.closing:
		return connectionClosed("send")
	case <-s.done:
		return connectionClosed("send")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session[L, R]) outboundLoop() {
	defer close(s.outDone)
	for {
		select {
		case m := <-s.outbound:
			if !s.write(m) {
				return
			}
		case <-s.closing:
			for {
				select {
				case m := <-s.outbound:
					if !s.write(m) {
						return
					}
				default:
					return
				}
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session[L, R]) write(m outboundMsg) bool {
	err := s.t.Send(s.ctx, m.data, m.opts...)
	if err == nil {
		return true
	}
	if s.ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
		s.finish(connectionClosed("send"))
		return false
	}
	s.log.Error("session.send.fail", slog.String("err", err.Error()))
	go s.closeWith(&TransportError{Op: "send", Err: err})
	return false
}

func (s *Session[L, R]) logContext(ctx context.Context) context.Context {
	return logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       s.id,
		Role:            s.rules.name,
		ProtocolVersion: s.ProtocolVersion(),
	})
}
