package jsonrpc

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestRoundTrip_AllEnvelopeShapes(t *testing.T) {
	t.Parallel()

	params := json.RawMessage(`{"cursor":"abc"}`)
	cases := []struct {
		name string
		msg  any
	}{
		{"request string id", &Request{JSONRPCVersion: ProtocolVersion, Method: "tools/list", Params: params, ID: NewRequestID("req-1")}},
		{"request int id", &Request{JSONRPCVersion: ProtocolVersion, Method: "ping", ID: NewRequestID(42)}},
		{"notification", &Request{JSONRPCVersion: ProtocolVersion, Method: "notifications/initialized", Params: params}},
		{"result response string id", &Response{JSONRPCVersion: ProtocolVersion, Result: json.RawMessage(`{"ok":true}`), ID: NewRequestID("1")}},
		{"error response int id", &Response{JSONRPCVersion: ProtocolVersion, Error: &Error{Code: ErrorCodeMethodNotFound, Message: "nope"}, ID: NewRequestID(7)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Encode(tc.msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			decoded, err := Decode(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			switch want := tc.msg.(type) {
			case *Request:
				got := decoded.AsRequest()
				if got == nil {
					t.Fatalf("expected request, got %s", decoded.Type())
				}
				if !reflect.DeepEqual(got, want) {
					t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, want)
				}
			case *Response:
				got := decoded.AsResponse()
				if got == nil {
					t.Fatalf("expected response, got %s", decoded.Type())
				}
				if !reflect.DeepEqual(got, want) {
					t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, want)
				}
			}
		})
	}
}

func TestDecode_Classification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		kind string
	}{
		{`{"jsonrpc":"2.0","method":"ping","id":1}`, TypeRequest},
		{`{"jsonrpc":"2.0","method":"notifications/message"}`, TypeNotification},
		{`{"jsonrpc":"2.0","result":{},"id":"a"}`, TypeResponse},
		{`{"jsonrpc":"2.0","error":{"code":-32700,"message":"parse"},"id":null}`, TypeResponse},
	}
	for _, tc := range cases {
		m, err := Decode([]byte(tc.in))
		if err != nil {
			t.Fatalf("decode %s: %v", tc.in, err)
		}
		if m.Type() != tc.kind {
			t.Fatalf("decode %s: got type %s want %s", tc.in, m.Type(), tc.kind)
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		code ErrorCode
	}{
		{``, ErrorCodeParseError},
		{`{"jsonrpc":`, ErrorCodeParseError},
		{`{"jsonrpc":"1.0","method":"x"}`, ErrorCodeInvalidRequest},
		{`{"jsonrpc":"2.0","method":"x","result":{}}`, ErrorCodeInvalidRequest},
		{`{"jsonrpc":"2.0","id":1}`, ErrorCodeInvalidRequest},
		{`{"jsonrpc":"2.0","result":{},"error":{"code":1,"message":"x"},"id":1}`, ErrorCodeInvalidRequest},
		{`{"jsonrpc":"2.0","result":{}}`, ErrorCodeInvalidRequest},
		{`{"jsonrpc":"2.0","method":"x","id":{"nested":true}}`, ErrorCodeInvalidRequest},
	}
	for _, tc := range cases {
		_, err := Decode([]byte(tc.in))
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("decode %q: expected DecodeError, got %v", tc.in, err)
		}
		if de.Code != tc.code {
			t.Fatalf("decode %q: got code %d want %d (%v)", tc.in, de.Code, tc.code, de.Err)
		}
	}
}

func TestRequestID_NormalizesIntegers(t *testing.T) {
	t.Parallel()

	if !NewRequestID(int32(5)).Equal(NewRequestID(uint64(5))) {
		t.Fatalf("expected integer ids of different widths to be equal")
	}
	if NewRequestID("5").Equal(NewRequestID(5)) {
		t.Fatalf("string and integer ids must not be equal")
	}
	if NewRequestID("5").String() != NewRequestID(5).String() {
		t.Fatalf("string forms should match")
	}
	if NewRequestID("5").Key() == NewRequestID(5).Key() {
		t.Fatalf("string and integer ids must not share a correlation key")
	}
	if NewRequestID(int32(5)).Key() != NewRequestID(int64(5)).Key() {
		t.Fatalf("integer widths must share a correlation key")
	}

	var id RequestID
	if err := json.Unmarshal([]byte(`9007199254740993`), &id); err != nil {
		t.Fatal(err)
	}
	if id.Value() != int64(9007199254740993) {
		t.Fatalf("large integer id lost precision: %v", id.Value())
	}
}

func TestError_ImplementsError(t *testing.T) {
	t.Parallel()

	var err error = NewError(ErrorCodeInvalidParams, "bad cursor", nil)
	var rpcErr *Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != ErrorCodeInvalidParams {
		t.Fatalf("expected *Error via errors.As, got %v", err)
	}
}
