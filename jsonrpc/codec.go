package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned by Decode for an empty or whitespace-only frame.
var ErrEmptyMessage = errors.New("empty message")

// Encode serializes a Request, Response or AnyMessage into a single compact
// JSON document. The result never contains a raw newline, which makes it safe
// for newline-delimited framing.
func Encode(v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return Message(b), nil
}

// Decode parses a single JSON document into an AnyMessage. Failures are
// reported as *DecodeError carrying the JSON-RPC code a peer would use to
// describe the problem.
func Decode(data []byte) (*AnyMessage, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &DecodeError{Code: ErrorCodeParseError, Err: ErrEmptyMessage}
	}
	var msg AnyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, &DecodeError{Code: ErrorCodeParseError, Err: err}
	}
	return &msg, nil
}
