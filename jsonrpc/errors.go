package jsonrpc

import "fmt"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603

	// ErrorCodeConnectionClosed is a protocol-defined code reported when the
	// connection went away before a response arrived.
	ErrorCodeConnectionClosed ErrorCode = -32000
	// ErrorCodeRequestTimeout is a protocol-defined code reported when a
	// request did not complete within its deadline.
	ErrorCodeRequestTimeout ErrorCode = -32001
)

// String returns a short human-readable name for well-known codes.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeParseError:
		return "parse error"
	case ErrorCodeInvalidRequest:
		return "invalid request"
	case ErrorCodeMethodNotFound:
		return "method not found"
	case ErrorCodeInvalidParams:
		return "invalid params"
	case ErrorCodeInternalError:
		return "internal error"
	case ErrorCodeConnectionClosed:
		return "connection closed"
	case ErrorCodeRequestTimeout:
		return "request timeout"
	default:
		return fmt.Sprintf("error %d", int(c))
	}
}

// Error is a JSON-RPC error object. It implements the error interface so that
// an error object returned by the peer can be surfaced to callers as-is and
// matched with errors.As.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// NewError constructs an error object.
func NewError(code ErrorCode, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("jsonrpc error %d: %s", int(e.Code), e.Message)
}

// DecodeError describes why an inbound frame could not be decoded. Code is
// either ErrorCodeParseError (not JSON) or ErrorCodeInvalidRequest (JSON, but
// not a valid JSON-RPC 2.0 message).
type DecodeError struct {
	Code ErrorCode
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
