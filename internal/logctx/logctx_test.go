package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Wrap(slog.NewJSONHandler(&buf, nil)))

	ctx := WithSessionData(context.Background(), &SessionData{SessionID: "s1", Role: "server", ProtocolVersion: "2025-06-18"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "ping", ID: "7", Type: "request"})
	log.With(slog.String("component", "test")).InfoContext(ctx, "session.request.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	sess, _ := rec["sess"].(map[string]any)
	rpc, _ := rec["rpc"].(map[string]any)
	if sess["id"] != "s1" || sess["role"] != "server" {
		t.Fatalf("unexpected sess group: %v", rec["sess"])
	}
	if rpc["method"] != "ping" || rpc["id"] != "7" {
		t.Fatalf("unexpected rpc group: %v", rec["rpc"])
	}
	if rec["component"] != "test" {
		t.Fatalf("WithAttrs dropped attributes: %v", rec)
	}
}

func TestWrapIsIdempotent(t *testing.T) {
	h := Wrap(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if _, ok := Wrap(h).(Handler); !ok {
		t.Fatalf("expected Handler")
	}
	if inner := Wrap(h).(Handler).Handler; inner == nil {
		t.Fatalf("lost inner handler")
	}
	if _, nested := Wrap(h).(Handler).Handler.(Handler); nested {
		t.Fatalf("Wrap nested a Handler inside another")
	}
}
