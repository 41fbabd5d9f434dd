package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
)

// RequestHandler answers an inbound request. The returned value is encoded
// as the result. A returned *jsonrpc.Error is sent verbatim; any other error
// becomes an internal error carrying its message.
type RequestHandler interface {
	HandleRequest(ctx context.Context, params json.RawMessage) (any, error)
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// HandleRequest implements RequestHandler.
func (f RequestHandlerFunc) HandleRequest(ctx context.Context, params json.RawMessage) (any, error) {
	return f(ctx, params)
}

// NotificationHandlerFunc handles an inbound notification. Errors go to the
// error sink.
type NotificationHandlerFunc func(ctx context.Context, params json.RawMessage) error

// HandlerKind distinguishes request handlers from notification handlers.
type HandlerKind int

const (
	KindRequest HandlerKind = iota
	KindNotification
)

func (k HandlerKind) String() string {
	if k == KindNotification {
		return "notification"
	}
	return "request"
}

// HandlerEntry describes a registered handler.
type HandlerEntry struct {
	Method string
	Kind   HandlerKind
	// Capability is the local capability the registration required, if any.
	Capability mcp.Capability
	// ParamsSchema is set for handlers built with Typed.
	ParamsSchema *jsonschema.Schema
	// Builtin marks handlers the session installs itself.
	Builtin bool
}

type handlerEntry struct {
	HandlerEntry
	request      RequestHandler
	notification NotificationHandlerFunc
}

var reservedMethods = map[mcp.Method]struct{}{
	mcp.InitializeMethod:              {},
	mcp.PingMethod:                    {},
	mcp.LoggingSetLevelMethod:         {},
	mcp.CancelledNotificationMethod:   {},
	mcp.ProgressNotificationMethod:    {},
	mcp.InitializedNotificationMethod: {},
}

// SetRequestHandler registers h for method. It fails with a
// *CapabilityError when method requires a capability the local document
// does not declare, and with ErrReservedMethod for built-in methods.
func (s *Session[L, R]) SetRequestHandler(method string, h RequestHandler) error {
	entry, err := s.newEntry(method, KindRequest)
	if err != nil {
		return err
	}
	entry.request = h
	if sp, ok := h.(interface{ ParamsSchema() *jsonschema.Schema }); ok {
		entry.ParamsSchema = sp.ParamsSchema()
	}
	s.install(entry)
	return nil
}

// MustSetRequestHandler is SetRequestHandler for init-time wiring; it panics
// on error.
func (s *Session[L, R]) MustSetRequestHandler(method string, h RequestHandler) {
	if err := s.SetRequestHandler(method, h); err != nil {
		panic(err)
	}
}

// SetNotificationHandler registers h for method, with the same checks as
// SetRequestHandler.
func (s *Session[L, R]) SetNotificationHandler(method string, h NotificationHandlerFunc) error {
	entry, err := s.newEntry(method, KindNotification)
	if err != nil {
		return err
	}
	entry.notification = h
	s.install(entry)
	return nil
}

// RemoveHandler unregisters the handler for method. Built-in handlers stay.
func (s *Session[L, R]) RemoveHandler(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.handlers[method]; ok && !e.Builtin {
		delete(s.handlers, method)
	}
}

// Handlers lists registered handlers sorted by method.
func (s *Session[L, R]) Handlers() []HandlerEntry {
	s.mu.RLock()
	out := make([]HandlerEntry, 0, len(s.handlers))
	for _, e := range s.handlers {
		out = append(out, e.HandlerEntry)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b HandlerEntry) int { return strings.Compare(a.Method, b.Method) })
	return out
}

func (s *Session[L, R]) newEntry(method string, kind HandlerKind) (*handlerEntry, error) {
	if method == "" {
		return nil, fmt.Errorf("empty method name")
	}
	if _, ok := reservedMethods[mcp.Method(method)]; ok {
		return nil, fmt.Errorf("%w: %s", ErrReservedMethod, method)
	}
	entry := &handlerEntry{HandlerEntry: HandlerEntry{Method: method, Kind: kind}}
	if c, ok := requiredCapability(s.rules.handle, method); ok {
		if !s.local.Has(c) {
			return nil, &CapabilityError{Side: s.rules.name, Capability: c, Method: method}
		}
		entry.Capability = c
	}
	return entry, nil
}

func (s *Session[L, R]) install(e *handlerEntry) {
	s.mu.Lock()
	s.handlers[e.Method] = e
	s.mu.Unlock()
}

func (s *Session[L, R]) installBuiltin(method mcp.Method, c mcp.Capability, h RequestHandlerFunc) {
	s.handlers[string(method)] = &handlerEntry{
		HandlerEntry: HandlerEntry{Method: string(method), Kind: KindRequest, Capability: c, Builtin: true},
		request:      h,
	}
}

func (s *Session[L, R]) lookup(method string, kind HandlerKind) *handlerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.handlers[method]
	if !ok || e.Kind != kind {
		return nil
	}
	return e
}

// TypedHandler is a RequestHandler decoding its params into P.
type TypedHandler[P, Res any] struct {
	fn     func(ctx context.Context, params P) (Res, error)
	schema *jsonschema.Schema
}

// Typed adapts fn into a RequestHandler. Params that fail to decode are
// answered with an invalid params error. Absent params decode as the zero P.
func Typed[P, Res any](fn func(ctx context.Context, params P) (Res, error)) *TypedHandler[P, Res] {
	return &TypedHandler[P, Res]{fn: fn, schema: reflectSchema[P]()}
}

// HandleRequest implements RequestHandler.
func (h *TypedHandler[P, Res]) HandleRequest(ctx context.Context, raw json.RawMessage) (any, error) {
	var p P
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid params: %v", err), nil)
		}
	}
	return h.fn(ctx, p)
}

// ParamsSchema returns the JSON schema reflected from P.
func (h *TypedHandler[P, Res]) ParamsSchema() *jsonschema.Schema { return h.schema }

func reflectSchema[P any]() *jsonschema.Schema {
	t := reflect.TypeFor[P]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: t.Kind() == reflect.Struct,
	}
	return r.ReflectFromType(t)
}
