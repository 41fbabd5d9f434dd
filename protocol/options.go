package protocol

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
	"github.com/ggoodman/mcp-peer-go/metrics"
)

const (
	defaultQueueSize    = 64
	defaultDrainTimeout = 5 * time.Second
	cancelNotifyTimeout = 5 * time.Second
)

type config struct {
	log            *slog.Logger
	versions       []string
	inboundSize    int
	outboundSize   int
	defaultTimeout time.Duration
	drainTimeout   time.Duration
	errorSink      func(error)
	onInitialized  func(ctx context.Context)
	metrics        *metrics.Metrics
	limiter        *rate.Limiter
	instructions   string
	sessionID      string
	levelVar       *slog.LevelVar
	idGen          func(n int64) *jsonrpc.RequestID
}

func defaultConfig() config {
	return config{
		log:          slog.Default(),
		versions:     mcp.SupportedProtocolVersions,
		inboundSize:  defaultQueueSize,
		outboundSize: defaultQueueSize,
		drainTimeout: defaultDrainTimeout,
	}
}

// Option customizes a Session.
type Option func(*config)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSupportedVersions sets the protocol versions accepted during
// negotiation, preferred version first.
func WithSupportedVersions(versions ...string) Option {
	return func(c *config) {
		if len(versions) > 0 {
			c.versions = versions
		}
	}
}

// WithInboundQueueSize bounds the queue between the transport and the
// dispatch loop.
func WithInboundQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.inboundSize = n
		}
	}
}

// WithOutboundQueueSize bounds the queue between callers and the transport.
// Sends block while it is full.
func WithOutboundQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.outboundSize = n
		}
	}
}

// WithDefaultTimeout applies a timeout to every request that does not set
// its own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// WithDrainTimeout bounds how long Close waits for queued messages to reach
// the transport.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.drainTimeout = d
		}
	}
}

// WithErrorSink receives errors from notification handlers and transport
// errors that do not fail a request.
func WithErrorSink(fn func(error)) Option {
	return func(c *config) { c.errorSink = fn }
}

// WithOnInitialized is called when the client confirms the handshake with
// notifications/initialized.
func WithOnInitialized(fn func(ctx context.Context)) Option {
	return func(c *config) { c.onInitialized = fn }
}

// WithMetrics records session activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithLogRateLimit drops log notifications beyond limit per second with the
// given burst.
func WithLogRateLimit(limit rate.Limit, burst int) Option {
	return func(c *config) { c.limiter = rate.NewLimiter(limit, burst) }
}

// WithInstructions sets the instructions a server returns from initialize.
func WithInstructions(s string) Option {
	return func(c *config) { c.instructions = s }
}

// WithSessionID names the session in logs. A random id is used otherwise.
func WithSessionID(id string) Option {
	return func(c *config) { c.sessionID = id }
}

// WithLevelVar mirrors the logging threshold a client sets into lv, so that
// slog handlers sharing lv follow it.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(c *config) { c.levelVar = lv }
}

// WithRequestIDs replaces the default integer ids of outgoing requests.
// gen receives a per-session sequence number starting at 1 and must return
// ids that are unique within the session.
func WithRequestIDs(gen func(n int64) *jsonrpc.RequestID) Option {
	return func(c *config) { c.idGen = gen }
}

// RequestOption configures a single Request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout         time.Duration
	maxTotal        time.Duration
	resetOnProgress bool
	onProgress      func(mcp.ProgressNotificationParams)
}

// WithTimeout fails the request with a *TimeoutError when no response
// arrives within d.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// WithProgress asks the peer for progress notifications and passes each to
// fn. fn runs on the dispatch loop and must not block.
func WithProgress(fn func(mcp.ProgressNotificationParams)) RequestOption {
	return func(o *requestOptions) { o.onProgress = fn }
}

// WithResetTimeoutOnProgress restarts the timeout whenever progress arrives.
func WithResetTimeoutOnProgress() RequestOption {
	return func(o *requestOptions) { o.resetOnProgress = true }
}

// WithMaxTotalTimeout caps the total wait regardless of progress.
func WithMaxTotalTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.maxTotal = d }
}
