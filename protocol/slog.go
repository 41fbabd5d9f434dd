package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/ggoodman/mcp-peer-go/mcp"
)

// LogSink receives log notifications. *Session satisfies it.
type LogSink interface {
	Log(ctx context.Context, params mcp.LoggingMessageParams) error
}

// SlogHandlerOptions configures NewSlogHandler.
type SlogHandlerOptions struct {
	// Logger names the logger field of every notification.
	Logger string
	// Level is the minimum slog level forwarded. Defaults to debug so that
	// the session threshold alone decides.
	Level slog.Leveler
}

// SlogHandler forwards slog records to the peer as notifications/message.
// Levels map as debug→debug, info→info, info+2→notice, warn→warning,
// error→error and error+4 or above→critical.
type SlogHandler struct {
	sink  LogSink
	opts  SlogHandlerOptions
	attrs []scopedAttr
	group []string
}

type scopedAttr struct {
	group []string
	attr  slog.Attr
}

// NewSlogHandler returns a handler that logs through sink.
func NewSlogHandler(sink LogSink, opts *SlogHandlerOptions) *SlogHandler {
	h := &SlogHandler{sink: sink}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelDebug
	}
	return h
}

// Enabled implements slog.Handler.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler.
func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	data := map[string]any{"message": r.Message}
	if !r.Time.IsZero() {
		data["time"] = r.Time.UTC().Format(time.RFC3339Nano)
	}
	for _, sa := range h.attrs {
		setAttr(data, sa.group, sa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		setAttr(data, h.group, a)
		return true
	})
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sink.Log(ctx, mcp.LoggingMessageParams{
		Level:  mcpLevel(r.Level),
		Logger: h.opts.Logger,
		Data:   raw,
	})
}

// WithAttrs implements slog.Handler.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, scopedAttr{group: h.group, attr: a})
	}
	return &nh
}

// WithGroup implements slog.Handler.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.group = append(slices.Clone(h.group), name)
	return &nh
}

func setAttr(root map[string]any, group []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	m := root
	for _, g := range group {
		next, ok := m[g].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[g] = next
		}
		m = next
	}
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		path := group
		if a.Key != "" {
			path = append(slices.Clone(group), a.Key)
		}
		for _, ga := range attrs {
			setAttr(root, path, ga)
		}
		return
	}
	m[a.Key] = attrValue(a.Value)
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}
