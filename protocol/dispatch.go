package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ggoodman/mcp-peer-go/internal/logctx"
	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
	"github.com/ggoodman/mcp-peer-go/metrics"
	"github.com/ggoodman/mcp-peer-go/transport"
)

// PeerCancelledError is the context cause seen by a request handler whose
// request the peer cancelled.
type PeerCancelledError struct {
	Reason string
}

func (e *PeerCancelledError) Error() string {
	if e.Reason == "" {
		return "cancelled by peer"
	}
	return "cancelled by peer: " + e.Reason
}

func (e *PeerCancelledError) Is(target error) bool { return target == ErrCancelled }

func (s *Session[L, R]) inboundLoop() {
	for {
		select {
		case msg := <-s.inbound:
			s.dispatch(msg)
		case <-s.done:
			return
		}
	}
}

// notificationLoop runs notification handlers one at a time in arrival
// order. A slow handler delays later notifications but never the dispatch
// loop.
func (s *Session[L, R]) notificationLoop() {
	for {
		select {
		case <-s.notifyQ.signal:
		case <-s.done:
			return
		}
		for _, n := range s.notifyQ.drain() {
			select {
			case <-s.done:
				return
			default:
			}
			s.runNotification(n)
		}
	}
}

func (s *Session[L, R]) dispatch(data []byte) {
	msg, err := jsonrpc.Decode(data)
	if err != nil {
		s.log.Warn("session.message.malformed", slog.String("err", err.Error()))
		s.report(fmt.Errorf("malformed message: %w", err))
		return
	}

	switch msg.Type() {
	case jsonrpc.TypeResponse:
		s.handleResponse(msg.AsResponse())
	case jsonrpc.TypeRequest:
		s.handleRequest(msg.AsRequest())
	case jsonrpc.TypeNotification:
		s.handleNotification(msg.AsRequest())
	}
}

func (s *Session[L, R]) handleResponse(resp *jsonrpc.Response) {
	call, ok := s.pending.take(resp.ID.Key())
	if !ok {
		s.log.Debug("session.response.unknown", slog.String("id", resp.ID.String()))
		return
	}
	call.ch <- outcome{resp: resp}
}

func (s *Session[L, R]) handleRequest(req *jsonrpc.Request) {
	ctx := logctx.WithRPCMessage(s.logContext(s.ctx), &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
		Type:   jsonrpc.TypeRequest,
	})

	entry := s.lookup(req.Method, KindRequest)
	if entry == nil {
		s.log.DebugContext(ctx, "session.request.method_not_found")
		s.cfg.metrics.RequestReceived(req.Method, metrics.OutcomeError)
		s.sendError(ctx, req.ID, jsonrpc.NewError(jsonrpc.ErrorCodeMethodNotFound, "Method not found: "+req.Method, nil))
		return
	}

	key := req.ID.Key()
	hctx, cancel := context.WithCancelCause(ctx)
	s.mu.Lock()
	if _, dup := s.inflight[key]; dup {
		s.mu.Unlock()
		cancel(nil)
		s.log.WarnContext(ctx, "session.request.duplicate_id")
		s.sendError(ctx, req.ID, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidRequest, "duplicate request id "+req.ID.String(), nil))
		return
	}
	s.inflight[key] = cancel
	s.mu.Unlock()

	hctx = withRequestInfo(hctx, &requestInfo{id: req.ID, method: req.Method, progressToken: progressToken(req.Params), notify: s.notify})
	go s.runRequest(hctx, cancel, entry, req)
}

func (s *Session[L, R]) runRequest(ctx context.Context, cancel context.CancelCauseFunc, entry *handlerEntry, req *jsonrpc.Request) {
	key := req.ID.Key()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
		cancel(nil)
	}()

	result, err := s.callHandler(ctx, entry, req.Params)

	var pc *PeerCancelledError
	if cause := context.Cause(ctx); errors.As(cause, &pc) {
		s.log.DebugContext(ctx, "session.request.cancelled_by_peer", slog.String("reason", pc.Reason))
		s.cfg.metrics.RequestReceived(req.Method, metrics.OutcomeCancelled)
		return
	}
	if s.ctx.Err() != nil {
		return
	}

	if err != nil {
		s.log.DebugContext(ctx, "session.request.handler_error", slog.String("err", err.Error()))
		s.cfg.metrics.RequestReceived(req.Method, metrics.OutcomeError)
	} else {
		s.cfg.metrics.RequestReceived(req.Method, metrics.OutcomeOK)
	}
	if rerr := s.respond(ctx, req.ID, result, err); rerr != nil {
		s.log.DebugContext(ctx, "session.response.send_fail", slog.String("err", rerr.Error()))
	}
}

func (s *Session[L, R]) callHandler(ctx context.Context, entry *handlerEntry, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.ErrorContext(ctx, "session.request.panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			result, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return entry.request.HandleRequest(ctx, params)
}

func (s *Session[L, R]) sendError(ctx context.Context, id *jsonrpc.RequestID, e *jsonrpc.Error) {
	if err := s.respond(ctx, id, nil, e); err != nil {
		s.log.DebugContext(ctx, "session.response.send_fail", slog.String("err", err.Error()))
	}
}

func (s *Session[L, R]) handleNotification(req *jsonrpc.Request) {
	switch mcp.Method(req.Method) {
	case mcp.CancelledNotificationMethod:
		s.handleCancelled(req.Params)
		return
	case mcp.ProgressNotificationMethod:
		s.handleProgress(req.Params)
		return
	case mcp.InitializedNotificationMethod:
		if s.rules.name == RoleServer && s.cfg.onInitialized != nil {
			go s.cfg.onInitialized(s.logContext(s.ctx))
		}
		return
	}

	entry := s.lookup(req.Method, KindNotification)
	if entry == nil {
		s.log.Debug("session.notification.unhandled", slog.String("method", req.Method))
		return
	}
	s.notifyQ.push(inboundNotification{entry: entry, req: req})
}

func (s *Session[L, R]) runNotification(n inboundNotification) {
	ctx := logctx.WithRPCMessage(s.logContext(s.ctx), &logctx.RPCMessage{
		Method: n.req.Method,
		Type:   jsonrpc.TypeNotification,
	})
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("notification handler panic: %v", r)
			}
		}()
		return n.entry.notification(ctx, n.req.Params)
	}()
	if err != nil {
		s.log.WarnContext(ctx, "session.notification.handler_error", slog.String("err", err.Error()))
		s.report(fmt.Errorf("%s: %w", n.req.Method, err))
	}
}

func (s *Session[L, R]) handleCancelled(params json.RawMessage) {
	var n mcp.CancelledNotification
	if err := json.Unmarshal(params, &n); err != nil || n.RequestID.IsNil() {
		s.log.Debug("session.cancelled.invalid")
		return
	}
	s.mu.RLock()
	cancel, ok := s.inflight[n.RequestID.Key()]
	s.mu.RUnlock()
	if !ok {
		return
	}
	cancel(&PeerCancelledError{Reason: n.Reason})
}

func (s *Session[L, R]) handleProgress(params json.RawMessage) {
	var p mcp.ProgressNotificationParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Debug("session.progress.invalid", slog.String("err", err.Error()))
		return
	}
	token := jsonrpc.NewRequestID(normalizeToken(p.ProgressToken))
	call, ok := s.pending.get(token.Key())
	if !ok || call.onProgress == nil {
		s.log.Debug("session.progress.unknown", slog.String("token", token.String()))
		return
	}
	call.progress(p)
}

// normalizeToken maps whole JSON numbers back onto the int64 ids the session
// allocates.
func normalizeToken(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func progressToken(params json.RawMessage) any {
	if len(params) == 0 {
		return nil
	}
	var p struct {
		Meta *mcp.RequestMeta `json:"_meta"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Meta == nil {
		return nil
	}
	return p.Meta.ProgressToken
}

type requestInfoKey struct{}

type requestInfo struct {
	id            *jsonrpc.RequestID
	method        string
	progressToken any
	notify        func(ctx context.Context, method string, params any, opts ...transport.SendOption) error
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestID returns the id of the inbound request ctx belongs to.
func RequestID(ctx context.Context) (*jsonrpc.RequestID, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(*requestInfo)
	if !ok {
		return nil, false
	}
	return info.id, true
}

// ReportProgress sends a progress notification for the inbound request ctx
// belongs to. It is a no-op when the peer did not ask for progress.
func ReportProgress(ctx context.Context, progress, total float64, message string) error {
	info, ok := ctx.Value(requestInfoKey{}).(*requestInfo)
	if !ok || info.progressToken == nil {
		return nil
	}
	return info.notify(ctx, string(mcp.ProgressNotificationMethod), mcp.ProgressNotificationParams{
		ProgressToken: info.progressToken,
		Progress:      progress,
		Total:         total,
		Message:       message,
	}, transport.WithRelatedRequest(info.id))
}
