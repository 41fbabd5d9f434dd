package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RequestStarted()
	m.RequestFinished("ping", OutcomeOK, time.Millisecond)
	m.RequestReceived("ping", OutcomeOK)
	m.NotificationSent("notifications/message")
	m.LogDropped("threshold")
}

func TestRequestLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RequestStarted()
	m.RequestStarted()
	if got := testutil.ToFloat64(m.pending); got != 2 {
		t.Fatalf("pending = %v, want 2", got)
	}
	m.RequestFinished("tools/list", OutcomeOK, 5*time.Millisecond)
	m.RequestFinished("tools/list", OutcomeTimeout, time.Second)
	if got := testutil.ToFloat64(m.pending); got != 0 {
		t.Fatalf("pending = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.requestsSent.WithLabelValues("tools/list", OutcomeTimeout)); got != 1 {
		t.Fatalf("timeouts = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.latency); n != 1 {
		t.Fatalf("latency series = %d, want 1", n)
	}
}

func TestLogDropped(t *testing.T) {
	m := New(nil)
	m.LogDropped("threshold")
	m.LogDropped("threshold")
	m.LogDropped("rate")
	if got := testutil.ToFloat64(m.logsDropped.WithLabelValues("threshold")); got != 2 {
		t.Fatalf("threshold drops = %v, want 2", got)
	}
}
