package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/transport"
	"github.com/ggoodman/mcp-peer-go/transport/classify"
)

const (
	defaultQueueSize    = 64
	defaultMaxMessage   = 4 << 20
	defaultChunkSize    = 32 << 10
	defaultDrainTimeout = 5 * time.Second
	defaultProcessGrace = 2 * time.Second
)

var (
	// ErrEmbeddedNewline is returned by Send for a message containing a raw
	// newline, which would break the framing.
	ErrEmbeddedNewline = errors.New("stdio: message contains a raw newline")
	// ErrInvalidJSON wraps inbound lines that are not JSON documents.
	ErrInvalidJSON = errors.New("stdio: line is not a JSON document")
)

// SideChannelError is reported through OnError when a side-channel line is
// classified as fatal.
type SideChannelError struct {
	Line string
}

func (e *SideChannelError) Error() string {
	return fmt.Sprintf("stdio: fatal side-channel output: %s", e.Line)
}

// Transport is a newline-delimited JSON transport over a reader and a writer.
type Transport struct {
	transport.Lifecycle

	r   io.Reader
	w   io.Writer
	log *slog.Logger

	queueSize    int
	maxMessage   int
	chunkSize    int
	drainTimeout time.Duration
	processGrace time.Duration
	closeStreams bool

	side       io.Reader
	classifier classify.Classifier

	// Process hooks installed by Command.
	onStart    func() error
	onShutdown func()

	queue      chan jsonrpc.Message
	sendMu     sync.RWMutex
	done       chan struct{} // closed when shutdown begins
	drain      chan struct{} // closed once no sender can enqueue any more
	writerDone chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport reading documents from r and writing them to w.
func New(r io.Reader, w io.Writer, opts ...Option) *Transport {
	t := &Transport{
		r:            r,
		w:            w,
		log:          slog.Default(),
		queueSize:    defaultQueueSize,
		maxMessage:   defaultMaxMessage,
		chunkSize:    defaultChunkSize,
		drainTimeout: defaultDrainTimeout,
		processGrace: defaultProcessGrace,
		closeStreams: true,
		classifier:   classify.Default(),
		done:         make(chan struct{}),
		drain:        make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.queue = make(chan jsonrpc.Message, t.queueSize)
	return t
}

// Stdio creates a transport over os.Stdin and os.Stdout. The process streams
// are left open on shutdown.
func Stdio(opts ...Option) *Transport {
	return New(os.Stdin, os.Stdout, append([]Option{WithoutClosingStreams()}, opts...)...)
}

// Start launches the reader, writer and optional side-channel goroutines.
func (t *Transport) Start(ctx context.Context) error {
	if err := t.MarkStarted(); err != nil {
		return err
	}
	if t.onStart != nil {
		if err := t.onStart(); err != nil {
			t.shutdown(err)
			return fmt.Errorf("stdio: start: %w", err)
		}
	}

	go t.writeLoop()
	go t.readLoop()
	if t.side != nil {
		go t.sideLoop()
	}
	t.log.Debug("stdio.start")
	return nil
}

// Send enqueues msg for writing. It blocks while the outbound queue is full,
// honoring ctx.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message, _ ...transport.SendOption) error {
	if err := t.CheckSend(); err != nil {
		return err
	}
	if bytes.IndexByte(msg, '\n') >= 0 {
		return ErrEmbeddedNewline
	}

	t.sendMu.RLock()
	defer t.sendMu.RUnlock()

	select {
	case <-t.done:
		return transport.ErrClosed
	default:
	}

	select {
	case t.queue <- msg:
		return nil
	case <-t.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the transport down after flushing queued messages. It is safe
// to call repeatedly and concurrently.
func (t *Transport) Close() error {
	t.shutdown(nil)
	return nil
}

func (t *Transport) shutdown(cause error) {
	wasStarted := t.Started()
	if !t.MarkClosed() {
		return
	}

	// Refuse new sends, then wait for in-flight senders to leave before the
	// writer is told to drain what they queued.
	close(t.done)
	t.sendMu.Lock()
	close(t.drain)
	t.sendMu.Unlock()

	if wasStarted {
		select {
		case <-t.writerDone:
		case <-time.After(t.drainTimeout):
			t.log.Warn("stdio.shutdown.drain_timeout", slog.Int64("timeout_ms", t.drainTimeout.Milliseconds()))
		}
	}

	if t.closeStreams {
		if c, ok := t.w.(io.Closer); ok {
			_ = c.Close()
		}
		if c, ok := t.r.(io.Closer); ok {
			_ = c.Close()
		}
	}
	if t.onShutdown != nil {
		t.onShutdown()
	}

	if cause != nil {
		t.log.Info("stdio.shutdown", slog.String("cause", cause.Error()))
	} else {
		t.log.Debug("stdio.shutdown")
	}
	t.FireClose()
}

func (t *Transport) writeLoop() {
	defer close(t.writerDone)

	bw := bufio.NewWriter(t.w)
	write := func(msg jsonrpc.Message) error {
		if _, err := bw.Write(msg); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		// Flush whenever the queue is momentarily empty.
		if len(t.queue) == 0 {
			return bw.Flush()
		}
		return nil
	}
	fail := func(err error) {
		t.FireError(fmt.Errorf("stdio: write: %w", err))
		go t.shutdown(err)
	}

	for {
		select {
		case msg := <-t.queue:
			if err := write(msg); err != nil {
				fail(err)
				return
			}
		case <-t.drain:
			for {
				select {
				case msg := <-t.queue:
					if err := write(msg); err != nil {
						t.log.Debug("stdio.drain.fail", slog.String("err", err.Error()))
						return
					}
				default:
					if err := bw.Flush(); err != nil {
						t.log.Debug("stdio.drain.fail", slog.String("err", err.Error()))
					}
					return
				}
			}
		}
	}
}

func (t *Transport) readLoop() {
	rb := NewReadBuffer(t.maxMessage)
	buf := make([]byte, t.chunkSize)
	for {
		n, err := t.r.Read(buf)
		if n > 0 {
			docs, ferr := rb.Append(buf[:n])
			for _, doc := range docs {
				t.deliver(doc)
			}
			if ferr != nil {
				if t.Closed() {
					return
				}
				t.FireError(ferr)
				t.shutdown(ferr)
				return
			}
		}
		if err != nil {
			if t.Closed() {
				return
			}
			if errors.Is(err, io.EOF) {
				if rb.Pending() > 0 {
					t.log.Debug("stdio.read.eof_partial", slog.Int("bytes", rb.Pending()))
				}
				t.shutdown(nil)
				return
			}
			t.FireError(fmt.Errorf("stdio: read: %w", err))
			t.shutdown(err)
			return
		}
	}
}

func (t *Transport) deliver(doc []byte) {
	if t.Closed() {
		return
	}
	if !json.Valid(doc) {
		t.log.Debug("stdio.read.invalid_json", slog.Int("bytes", len(doc)))
		t.FireError(&transport.FrameError{Frame: doc, Err: ErrInvalidJSON})
		return
	}
	t.Deliver(jsonrpc.Message(doc))
}

func (t *Transport) sideLoop() {
	sc := bufio.NewScanner(t.side)
	sc.Buffer(make([]byte, 0, 4096), t.maxMessage)
	for sc.Scan() {
		line := sc.Text()
		sev := t.classifier.Classify(line)
		if sev == classify.Fatal {
			t.log.Error("stdio.side_channel.fatal", slog.String("line", line))
			err := &SideChannelError{Line: line}
			t.FireError(err)
			t.shutdown(err)
			return
		}
		if lvl, ok := sev.SlogLevel(); ok {
			t.log.Log(context.Background(), lvl, "stdio.side_channel.line", slog.String("line", line))
		}
	}
	if err := sc.Err(); err != nil && !t.Closed() {
		t.log.Debug("stdio.side_channel.read_fail", slog.String("err", err.Error()))
	}
}
