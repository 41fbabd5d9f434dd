package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
)

var (
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("transport failure")
	// ErrConnectionClosed matches a *TransportError caused by the connection
	// going away.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrRequestTimeout matches every *TimeoutError.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrCapability matches every *CapabilityError.
	ErrCapability = errors.New("capability not supported")
	// ErrCancelled matches every *CancellationError.
	ErrCancelled = errors.New("request cancelled")
	// ErrDuplicateRequestID is returned when a request id is already pending.
	ErrDuplicateRequestID = errors.New("duplicate request id")
	// ErrReservedMethod is returned when registering a handler for a method
	// the session implements itself.
	ErrReservedMethod = errors.New("method is handled by the session")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrWrongRole is returned when an operation is only valid for the other
	// role.
	ErrWrongRole = errors.New("operation not valid for this role")
)

// TransportError reports an I/O failure, an abrupt close or a serialization
// failure. It always terminates the session it came from.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport %s failed", e.Op)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// JSONRPCError converts the error for use in a response.
func (e *TransportError) JSONRPCError() *jsonrpc.Error {
	return jsonrpc.NewError(jsonrpc.ErrorCodeConnectionClosed, e.Error(), nil)
}

func connectionClosed(op string) *TransportError {
	return &TransportError{Op: op, Err: ErrConnectionClosed}
}

// TimeoutError reports that no response arrived before the request's
// deadline. A cancellation notification was sent to the peer.
type TimeoutError struct {
	Method  string
	ID      *jsonrpc.RequestID
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s (id %s) timed out after %s", e.Method, e.ID, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrRequestTimeout }

// JSONRPCError converts the error for use in a response.
func (e *TimeoutError) JSONRPCError() *jsonrpc.Error {
	return jsonrpc.NewError(jsonrpc.ErrorCodeRequestTimeout, e.Error(), map[string]any{"timeout_ms": e.Timeout.Milliseconds()})
}

// CapabilityError reports a local precondition violation. It is never
// transmitted.
type CapabilityError struct {
	// Side is the role whose capability document lacks the capability.
	Side       string
	Capability mcp.Capability
	Method     string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s does not support capability %q (required for %s)", e.Side, e.Capability, e.Method)
}

func (e *CapabilityError) Is(target error) bool { return target == ErrCapability }

// CancellationError reports that the caller's context ended before a
// response arrived. A cancellation notification was sent to the peer.
type CancellationError struct {
	Method string
	ID     *jsonrpc.RequestID
	Cause  error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("request %s (id %s) cancelled: %v", e.Method, e.ID, e.Cause)
}

func (e *CancellationError) Unwrap() error { return e.Cause }

func (e *CancellationError) Is(target error) bool { return target == ErrCancelled }

// VersionError reports that the server chose a protocol version the client
// does not support. The transport is closed.
type VersionError struct {
	Requested string
	Got       string
	Supported []string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("server selected unsupported protocol version %q (requested %q, supported: %s)", e.Got, e.Requested, strings.Join(e.Supported, ", "))
}
