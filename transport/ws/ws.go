// Package ws is a message-oriented transport over WebSocket: one text frame
// carries one envelope.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/transport"
)

// Subprotocol is offered and accepted by default.
const Subprotocol = "mcp"

const (
	defaultQueueSize  = 64
	defaultReadLimit  = 4 << 20
	normalCloseReason = "session closed"
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

// WithQueueSize bounds the outbound queue.
func WithQueueSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.queueSize = n
		}
	}
}

// WithReadLimit bounds the size of a single inbound frame.
func WithReadLimit(n int64) Option {
	return func(t *Transport) {
		if n > 0 {
			t.readLimit = n
		}
	}
}

// Transport carries envelopes over an established WebSocket connection.
type Transport struct {
	transport.Lifecycle

	conn      *websocket.Conn
	log       *slog.Logger
	queueSize int
	readLimit int64

	queue      chan outbound
	ctx        context.Context
	cancel     context.CancelFunc
	writerDone chan struct{}
}

type outbound struct {
	msg  jsonrpc.Message
	done chan error
}

var _ transport.Transport = (*Transport)(nil)

// Dial connects to a WebSocket endpoint.
func Dial(ctx context.Context, url string, header http.Header, opts ...Option) (*Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader:   header,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("ws: dial: %w", err)
	}
	return New(conn, opts...), nil
}

// Accept upgrades an HTTP request.
func Accept(w http.ResponseWriter, r *http.Request, opts ...Option) (*Transport, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("ws: accept: %w", err)
	}
	return New(conn, opts...), nil
}

// New wraps an established connection.
func New(conn *websocket.Conn, opts ...Option) *Transport {
	t := &Transport{
		conn:       conn,
		log:        slog.Default(),
		queueSize:  defaultQueueSize,
		readLimit:  defaultReadLimit,
		writerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.queue = make(chan outbound, t.queueSize)
	t.ctx, t.cancel = context.WithCancel(context.Background())
	conn.SetReadLimit(t.readLimit)
	return t
}

// Start launches the read and write loops.
func (t *Transport) Start(ctx context.Context) error {
	if err := t.MarkStarted(); err != nil {
		return err
	}
	go t.writeLoop()
	go t.readLoop()
	return nil
}

// Send queues msg as a single text frame and waits for it to be written.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message, _ ...transport.SendOption) error {
	if err := t.CheckSend(); err != nil {
		return err
	}
	o := outbound{msg: msg, done: make(chan error, 1)}
	select {
	case t.queue <- o:
	case <-t.ctx.Done():
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-o.done:
		return err
	case <-t.ctx.Done():
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close sends a normal-closure frame and releases the connection.
func (t *Transport) Close() error {
	t.shutdown(nil)
	return nil
}

func (t *Transport) shutdown(cause error) {
	wasStarted := t.Started()
	if !t.MarkClosed() {
		return
	}
	t.cancel()
	if wasStarted {
		<-t.writerDone
	}
	if err := t.conn.Close(websocket.StatusNormalClosure, normalCloseReason); err != nil {
		t.log.Debug("ws.close.fail", slog.String("err", err.Error()))
	}
	if cause != nil {
		t.log.Info("ws.shutdown", slog.String("cause", cause.Error()))
	}
	t.FireClose()
}

func (t *Transport) writeLoop() {
	defer close(t.writerDone)
	for {
		select {
		case <-t.ctx.Done():
			return
		case o := <-t.queue:
			err := t.conn.Write(t.ctx, websocket.MessageText, o.msg)
			o.done <- err
			if err != nil {
				if t.ctx.Err() == nil {
					t.FireError(fmt.Errorf("ws: write: %w", err))
					go t.shutdown(err)
				}
				return
			}
		}
	}
}

func (t *Transport) readLoop() {
	for {
		// Reads end when Close completes the closing handshake.
		typ, data, err := t.conn.Read(context.Background())
		if err != nil {
			if t.Closed() {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				t.shutdown(nil)
				return
			}
			t.FireError(fmt.Errorf("ws: read: %w", err))
			t.shutdown(err)
			return
		}
		if typ != websocket.MessageText {
			t.FireError(&transport.FrameError{Frame: data, Err: errors.New("ws: binary frame")})
			continue
		}
		t.Deliver(jsonrpc.Message(data))
	}
}
