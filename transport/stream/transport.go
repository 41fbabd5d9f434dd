package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/transport"
)

// Side selects which inbox a transport reads.
type Side int

const (
	SideClient Side = iota
	SideServer
)

func (s Side) String() string {
	if s == SideServer {
		return "server"
	}
	return "client"
}

func (s Side) peer() Side {
	if s == SideServer {
		return SideClient
	}
	return SideServer
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string { return uuid.NewString() }

// InboxKey is the stream key holding messages addressed to side.
func InboxKey(sessionID string, side Side) string {
	return sessionID + ":" + side.String()
}

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

const closeMarkerTimeout = 2 * time.Second

// Transport exchanges envelopes through a Host. An empty event is the close
// marker a side publishes to its peer on Close.
type Transport struct {
	transport.Lifecycle

	host      Host
	sessionID string
	side      Side
	log       *slog.Logger

	mu          sync.Mutex
	lastEventID string

	sendMu  sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	subDone chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport for one side of sessionID reading its inbox from
// the beginning.
func New(host Host, sessionID string, side Side, opts ...Option) *Transport {
	return Resume(host, sessionID, side, "", opts...)
}

// Resume returns a transport that continues reading its inbox right after
// lastEventID.
func Resume(host Host, sessionID string, side Side, lastEventID string, opts ...Option) *Transport {
	t := &Transport{
		host:        host,
		sessionID:   sessionID,
		side:        side,
		log:         slog.Default(),
		lastEventID: lastEventID,
		subDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// SessionID returns the out-of-band session identifier.
func (t *Transport) SessionID() string { return t.sessionID }

// LastEventID returns the id of the last event delivered to OnMessage.
func (t *Transport) LastEventID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEventID
}

// Start subscribes to this side's inbox.
func (t *Transport) Start(ctx context.Context) error {
	if err := t.MarkStarted(); err != nil {
		return err
	}
	go t.subscribe()
	return nil
}

func (t *Transport) subscribe() {
	defer close(t.subDone)
	key := InboxKey(t.sessionID, t.side)
	err := t.host.Subscribe(t.ctx, key, t.LastEventID(), func(ctx context.Context, eventID string, data []byte) error {
		if len(data) == 0 {
			t.log.Debug("stream.peer_closed", slog.String("session_id", t.sessionID))
			go t.shutdown(false, nil)
			return errPeerClosed
		}
		t.mu.Lock()
		t.lastEventID = eventID
		t.mu.Unlock()
		t.Deliver(jsonrpc.Message(data))
		return nil
	})
	if t.Closed() || errors.Is(err, errPeerClosed) {
		return
	}
	if err == nil {
		// The stream was cleaned up underneath us.
		go t.shutdown(false, nil)
		return
	}
	t.FireError(fmt.Errorf("stream: subscribe: %w", err))
	go t.shutdown(false, err)
}

var errPeerClosed = errors.New("stream: peer closed")

// Send publishes msg to the peer's inbox. Publishes are serialized so that
// send order is stream order.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message, _ ...transport.SendOption) error {
	if err := t.CheckSend(); err != nil {
		return err
	}
	if len(msg) == 0 {
		return errors.New("stream: empty message")
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if t.Closed() {
		return transport.ErrClosed
	}
	if _, err := t.host.Publish(ctx, InboxKey(t.sessionID, t.side.peer()), msg); err != nil {
		return fmt.Errorf("stream: publish: %w", err)
	}
	return nil
}

// Close tells the peer the session is over and stops reading.
func (t *Transport) Close() error {
	t.shutdown(true, nil)
	return nil
}

// Suspend stops reading without telling the peer, leaving both streams in
// place for Resume.
func (t *Transport) Suspend() {
	t.shutdown(false, nil)
}

// Cleanup deletes both inbox streams of the session.
func (t *Transport) Cleanup(ctx context.Context) error {
	return errors.Join(
		t.host.Cleanup(ctx, InboxKey(t.sessionID, SideClient)),
		t.host.Cleanup(ctx, InboxKey(t.sessionID, SideServer)),
	)
}

func (t *Transport) shutdown(notifyPeer bool, cause error) {
	wasStarted := t.Started()
	if !t.MarkClosed() {
		return
	}
	if notifyPeer && wasStarted {
		t.sendMu.Lock()
		ctx, cancel := context.WithTimeout(context.Background(), closeMarkerTimeout)
		if _, err := t.host.Publish(ctx, InboxKey(t.sessionID, t.side.peer()), nil); err != nil {
			t.log.Debug("stream.close_marker.fail", slog.String("err", err.Error()))
		}
		cancel()
		t.sendMu.Unlock()
	}
	t.cancel()
	if wasStarted {
		<-t.subDone
	}
	if cause != nil {
		t.log.Info("stream.shutdown", slog.String("session_id", t.sessionID), slog.String("cause", cause.Error()))
	}
	t.FireClose()
}
