package jsonrpc

import (
	"encoding/json"
	"testing"

	sdkjsonrpc "github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// The official SDK codec must be able to read what we write and vice versa.

func TestInterop_SDKDecodesOurRequests(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(NewRequestID(3), "tools/list", map[string]any{"cursor": "c1"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(req)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := sdkjsonrpc.DecodeMessage(b)
	if err != nil {
		t.Fatalf("sdk decode: %v", err)
	}
	sreq, ok := msg.(*sdkjsonrpc.Request)
	if !ok {
		t.Fatalf("expected *jsonrpc.Request from sdk, got %T", msg)
	}
	if sreq.Method != "tools/list" {
		t.Fatalf("method mismatch: %s", sreq.Method)
	}
	if sreq.ID.Raw() != int64(3) {
		t.Fatalf("id mismatch: %#v", sreq.ID.Raw())
	}
}

func TestInterop_WeDecodeSDKResponses(t *testing.T) {
	t.Parallel()

	id, err := sdkjsonrpc.MakeID("abc")
	if err != nil {
		t.Fatal(err)
	}
	b, err := sdkjsonrpc.EncodeMessage(&sdkjsonrpc.Response{ID: id, Result: json.RawMessage(`{"ok":true}`)})
	if err != nil {
		t.Fatalf("sdk encode: %v", err)
	}

	m, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	res := m.AsResponse()
	if res == nil || res.ID.String() != "abc" {
		t.Fatalf("unexpected response: %+v", m)
	}
	if string(res.Result) != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", res.Result)
	}
}
