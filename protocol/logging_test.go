package protocol_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"golang.org/x/time/rate"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
	"github.com/ggoodman/mcp-peer-go/metrics"
	"github.com/ggoodman/mcp-peer-go/protocol"
)

// logCollector gathers notifications/message on the client side.
type logCollector struct {
	mu   sync.Mutex
	msgs []mcp.LoggingMessageParams
	ch   chan struct{}
}

func newLogCollector() *logCollector {
	return &logCollector{ch: make(chan struct{}, 64)}
}

func (c *logCollector) register(t *testing.T, client *protocol.ClientSession) {
	t.Helper()
	err := client.SetNotificationHandler(string(mcp.LoggingMessageNotificationMethod), func(_ context.Context, params json.RawMessage) error {
		var p mcp.LoggingMessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			return err
		}
		c.mu.Lock()
		c.msgs = append(c.msgs, p)
		c.mu.Unlock()
		c.ch <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
}

func (c *logCollector) waitFor(t *testing.T, level mcp.LoggingLevel) []mcp.LoggingMessageParams {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		for _, m := range c.msgs {
			if m.Level == level {
				out := append([]mcp.LoggingMessageParams(nil), c.msgs...)
				c.mu.Unlock()
				return out
			}
		}
		c.mu.Unlock()
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("no %s message arrived", level)
			return nil
		}
	}
}

func loggingPair(t *testing.T, opts ...protocol.Option) (*protocol.ClientSession, *protocol.ServerSession, *logCollector) {
	t.Helper()
	logs := newLogCollector()
	client, server := newPair(t, pairConfig{
		serverCaps: mcp.ServerCapabilities{Logging: &mcp.EmptyFeature{}},
		serverOpts: opts,
		setup: func(c *protocol.ClientSession, _ *protocol.ServerSession) {
			logs.register(t, c)
		},
	})
	return client, server, logs
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestLogThresholdFiltersBelowLevel(t *testing.T) {
	reg := prometheus.NewRegistry()
	client, server, logs := loggingPair(t, protocol.WithMetrics(metrics.New(reg)))

	if _, err := client.Request(t.Context(), string(mcp.LoggingSetLevelMethod), mcp.SetLevelRequest{Level: mcp.LoggingLevelError}); err != nil {
		t.Fatalf("setLevel: %v", err)
	}
	if server.LoggingThreshold() != mcp.LoggingLevelError {
		t.Fatalf("threshold = %s", server.LoggingThreshold())
	}

	for _, level := range mcp.LoggingLevels {
		if err := server.Log(t.Context(), mcp.LoggingMessageParams{Level: level, Data: json.RawMessage(`"` + string(level) + `"`)}); err != nil {
			t.Fatalf("log %s: %v", level, err)
		}
	}

	got := logs.waitFor(t, mcp.LoggingLevelEmergency)
	want := []mcp.LoggingLevel{mcp.LoggingLevelError, mcp.LoggingLevelCritical, mcp.LoggingLevelAlert, mcp.LoggingLevelEmergency}
	if len(got) != len(want) {
		t.Fatalf("got %d messages: %+v", len(got), got)
	}
	for i, m := range got {
		if m.Level != want[i] {
			t.Fatalf("message %d level %s, want %s", i, m.Level, want[i])
		}
	}
	if v := counterValue(t, reg, "mcp_logging_dropped_total", map[string]string{"reason": "threshold"}); v != 4 {
		t.Fatalf("dropped = %v", v)
	}
}

func TestDefaultThresholdPassesEverything(t *testing.T) {
	_, server, logs := loggingPair(t)
	if server.LoggingThreshold() != mcp.LoggingLevelDebug {
		t.Fatalf("default threshold = %s", server.LoggingThreshold())
	}
	_ = server.Log(t.Context(), mcp.LoggingMessageParams{Level: mcp.LoggingLevelDebug, Logger: "db"})
	got := logs.waitFor(t, mcp.LoggingLevelDebug)
	if got[0].Logger != "db" || string(got[0].Data) != "null" {
		t.Fatalf("message = %+v", got[0])
	}
}

func TestSetLevelRejectsUnknownLevel(t *testing.T) {
	client, _, _ := loggingPair(t)
	_, err := client.Request(t.Context(), string(mcp.LoggingSetLevelMethod), map[string]string{"level": "loud"})
	var je *jsonrpc.Error
	if !errors.As(err, &je) || je.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("expected invalid params, got %v", err)
	}
}

func TestSetLevelUpdatesLevelVar(t *testing.T) {
	var lv slog.LevelVar
	client, _, _ := loggingPair(t, protocol.WithLevelVar(&lv))
	if _, err := client.Request(t.Context(), string(mcp.LoggingSetLevelMethod), mcp.SetLevelRequest{Level: mcp.LoggingLevelWarning}); err != nil {
		t.Fatalf("setLevel: %v", err)
	}
	if lv.Level() != slog.LevelWarn {
		t.Fatalf("level var = %s", lv.Level())
	}
}

func TestLogRequiresLoggingCapability(t *testing.T) {
	client, server := newPair(t, pairConfig{})
	err := server.Log(t.Context(), mcp.LoggingMessageParams{Level: mcp.LoggingLevelError})
	var ce *protocol.CapabilityError
	if !errors.As(err, &ce) || ce.Capability != mcp.CapabilityLogging {
		t.Fatalf("expected logging capability error, got %v", err)
	}
	if _, err := client.Request(t.Context(), string(mcp.LoggingSetLevelMethod), mcp.SetLevelRequest{Level: mcp.LoggingLevelError}); !errors.Is(err, protocol.ErrCapability) {
		t.Fatalf("setLevel against a server without logging: %v", err)
	}
}

func TestLogRateLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, server, logs := loggingPair(t, protocol.WithLogRateLimit(rate.Every(time.Hour), 2), protocol.WithMetrics(metrics.New(reg)))
	for range 5 {
		if err := server.Log(t.Context(), mcp.LoggingMessageParams{Level: mcp.LoggingLevelInfo}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	_ = server.Notify(t.Context(), string(mcp.LoggingMessageNotificationMethod), mcp.LoggingMessageParams{Level: mcp.LoggingLevelAlert, Data: json.RawMessage(`"marker"`)})

	got := logs.waitFor(t, mcp.LoggingLevelAlert)
	if len(got) != 3 {
		t.Fatalf("expected 2 limited messages and the marker, got %+v", got)
	}
	if v := counterValue(t, reg, "mcp_logging_dropped_total", map[string]string{"reason": "rate"}); v != 3 {
		t.Fatalf("dropped = %v", v)
	}
}

func TestSlogHandlerForwardsRecords(t *testing.T) {
	_, server, logs := loggingPair(t)
	logger := slog.New(protocol.NewSlogHandler(server, &protocol.SlogHandlerOptions{Logger: "app"}))

	logger.With("component", "disk").WithGroup("stats").Warn("space low", "free_mb", 10, "err", errors.New("ENOSPC"))

	got := logs.waitFor(t, mcp.LoggingLevelWarning)
	if got[0].Logger != "app" {
		t.Fatalf("logger = %q", got[0].Logger)
	}
	var data struct {
		Message   string `json:"message"`
		Component string `json:"component"`
		Stats     struct {
			FreeMB int    `json:"free_mb"`
			Err    string `json:"err"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(got[0].Data, &data); err != nil {
		t.Fatalf("decode %s: %v", got[0].Data, err)
	}
	if data.Message != "space low" || data.Component != "disk" || data.Stats.FreeMB != 10 || data.Stats.Err != "ENOSPC" {
		t.Fatalf("data = %s", got[0].Data)
	}
}

func TestSlogHandlerLevelMapping(t *testing.T) {
	_, server, logs := loggingPair(t)
	h := protocol.NewSlogHandler(server, &protocol.SlogHandlerOptions{Level: slog.LevelInfo})
	if h.Enabled(t.Context(), slog.LevelDebug) {
		t.Fatal("debug should be disabled")
	}
	logger := slog.New(h)
	logger.Log(t.Context(), slog.LevelInfo+2, "notice")
	logger.Log(t.Context(), slog.LevelError+4, "critical")

	got := logs.waitFor(t, mcp.LoggingLevelCritical)
	if len(got) != 2 || got[0].Level != mcp.LoggingLevelNotice {
		t.Fatalf("got %+v", got)
	}
}
