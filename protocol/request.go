package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
	"github.com/ggoodman/mcp-peer-go/metrics"
	"github.com/ggoodman/mcp-peer-go/transport"
)

// Request sends method to the peer and waits for exactly one outcome: the
// raw result, a *jsonrpc.Error from the peer, a *TimeoutError, a
// *CancellationError when ctx ends, a *TransportError when the connection
// goes away, or a *CapabilityError when the negotiated peer does not
// support method.
func (s *Session[L, R]) Request(ctx context.Context, method string, params any, opts ...RequestOption) (json.RawMessage, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.timeout == 0 {
		ro.timeout = s.cfg.defaultTimeout
	}

	switch s.State() {
	case StateUninitialized:
		return nil, &TransportError{Op: "send", Err: transport.ErrNotStarted}
	case StateClosed:
		return nil, connectionClosed("send")
	}
	if err := s.checkPeer(method); err != nil {
		return nil, err
	}

	id := s.newRequestID()
	if ro.onProgress != nil {
		var err error
		if params, err = withProgressToken(params, id.Value()); err != nil {
			return nil, fmt.Errorf("request %s: %w", method, err)
		}
	}
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, &TransportError{Op: "encode", Err: err}
	}
	data, err := jsonrpc.Encode(req)
	if err != nil {
		return nil, &TransportError{Op: "encode", Err: err}
	}

	call := newPendingCall(method, id, ro.onProgress)
	if err := s.pending.add(call); err != nil {
		return nil, err
	}
	s.cfg.metrics.RequestStarted()

	if err := s.enqueue(ctx, outboundMsg{data: data}); err != nil {
		if ctx.Err() != nil {
			err = &CancellationError{Method: method, ID: id, Cause: context.Cause(ctx)}
		}
		return nil, s.failUnsent(call, err)
	}

	return s.await(ctx, call, ro)
}

func (s *Session[L, R]) newRequestID() *jsonrpc.RequestID {
	n := s.nextID.Add(1)
	if s.cfg.idGen != nil {
		if id := s.cfg.idGen(n); !id.IsNil() {
			return id
		}
	}
	return jsonrpc.NewRequestID(n)
}

// failUnsent settles a call that never reached the outbound queue. A close
// that resolved it first supplies the error; a response carrying its id
// cannot be genuine and is ignored.
func (s *Session[L, R]) failUnsent(call *pendingCall, err error) error {
	if _, ok := s.pending.take(call.id.Key()); !ok {
		if out := <-call.ch; out.err != nil {
			err = out.err
		}
	}
	s.finishCall(call, err)
	return err
}

func (s *Session[L, R]) await(ctx context.Context, call *pendingCall, ro requestOptions) (json.RawMessage, error) {
	var timer, total <-chan time.Time
	var t *time.Timer
	if ro.timeout > 0 {
		t = time.NewTimer(ro.timeout)
		defer t.Stop()
		timer = t.C
	}
	if ro.maxTotal > 0 {
		mt := time.NewTimer(ro.maxTotal)
		defer mt.Stop()
		total = mt.C
	}

	for {
		select {
		case out := <-call.ch:
			return s.resolve(call, out)
		case <-call.progressed:
			if ro.resetOnProgress && t != nil {
				t.Reset(ro.timeout)
			}
		case <-ctx.Done():
			return s.abandon(call, &CancellationError{Method: call.method, ID: call.id, Cause: context.Cause(ctx)}, "cancelled by caller")
		case <-timer:
			return s.abandon(call, &TimeoutError{Method: call.method, ID: call.id, Timeout: ro.timeout}, "request timed out")
		case <-total:
			return s.abandon(call, &TimeoutError{Method: call.method, ID: call.id, Timeout: ro.maxTotal}, "maximum total timeout exceeded")
		}
	}
}

// abandon settles call with err unless a response or close beat it to the
// registry, in which case that outcome wins.
func (s *Session[L, R]) abandon(call *pendingCall, err error, reason string) (json.RawMessage, error) {
	if _, ok := s.pending.take(call.id.Key()); !ok {
		return s.resolve(call, <-call.ch)
	}
	s.finishCall(call, err)
	s.log.Debug("session.request.abandon", slog.String("method", call.method), slog.String("id", call.id.String()), slog.String("reason", reason))
	go s.sendCancelled(call.id, reason)
	return nil, err
}

func (s *Session[L, R]) resolve(call *pendingCall, out outcome) (json.RawMessage, error) {
	if out.err != nil {
		s.finishCall(call, out.err)
		return nil, out.err
	}
	if out.resp.Error != nil {
		s.finishCall(call, out.resp.Error)
		return nil, out.resp.Error
	}
	s.finishCall(call, nil)
	return out.resp.Result, nil
}

func (s *Session[L, R]) finishCall(call *pendingCall, err error) {
	outcome := metrics.OutcomeOK
	var (
		te *TimeoutError
		ce *CancellationError
	)
	switch {
	case err == nil:
	case errors.As(err, &te):
		outcome = metrics.OutcomeTimeout
	case errors.As(err, &ce):
		outcome = metrics.OutcomeCancelled
	case errors.Is(err, ErrTransport):
		outcome = metrics.OutcomeClosed
	default:
		outcome = metrics.OutcomeError
	}
	s.cfg.metrics.RequestFinished(call.method, outcome, time.Since(call.started))
}

// sendCancelled tells the peer to stop working on id. Delivery is best
// effort.
func (s *Session[L, R]) sendCancelled(id *jsonrpc.RequestID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelNotifyTimeout)
	defer cancel()
	err := s.notify(ctx, string(mcp.CancelledNotificationMethod), mcp.CancelledNotification{RequestID: id, Reason: reason})
	if err != nil && !errors.Is(err, ErrConnectionClosed) {
		s.log.Debug("session.cancel.send_fail", slog.String("id", id.String()), slog.String("err", err.Error()))
	}
}

// Call sends method and decodes the result into Res.
func Call[Res any, L Capabilities[L], R Capabilities[R]](ctx context.Context, s *Session[L, R], method string, params any, opts ...RequestOption) (Res, error) {
	var res Res
	raw, err := s.Request(ctx, method, params, opts...)
	if err != nil {
		return res, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return res, fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return res, nil
}

// Notify sends a notification. It fails with a *CapabilityError when method
// requires a capability the local document does not declare.
func (s *Session[L, R]) Notify(ctx context.Context, method string, params any) error {
	if c, ok := requiredCapability(s.rules.notify, method); ok && !s.local.Has(c) {
		return &CapabilityError{Side: s.rules.name, Capability: c, Method: method}
	}
	return s.notify(ctx, method, params)
}

func (s *Session[L, R]) notify(ctx context.Context, method string, params any, opts ...transport.SendOption) error {
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return &TransportError{Op: "encode", Err: err}
	}
	data, err := jsonrpc.Encode(n)
	if err != nil {
		return &TransportError{Op: "encode", Err: err}
	}
	if err := s.enqueue(ctx, outboundMsg{data: data, opts: opts}); err != nil {
		return err
	}
	s.cfg.metrics.NotificationSent(method)
	return nil
}

// respond answers the inbound request id. A nil herr sends result.
func (s *Session[L, R]) respond(ctx context.Context, id *jsonrpc.RequestID, result any, herr error) error {
	var resp *jsonrpc.Response
	if herr != nil {
		e := toJSONRPCError(herr)
		resp = jsonrpc.NewErrorResponse(id, e.Code, e.Message, e.Data)
	} else {
		var err error
		if resp, err = jsonrpc.NewResultResponse(id, result); err != nil {
			s.log.ErrorContext(ctx, "session.response.encode_fail", slog.String("err", err.Error()))
			resp = jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "failed to encode result", nil)
		}
	}
	data, err := jsonrpc.Encode(resp)
	if err != nil {
		return &TransportError{Op: "encode", Err: err}
	}
	return s.enqueue(s.ctx, outboundMsg{data: data, opts: []transport.SendOption{transport.WithRelatedRequest(id)}})
}

func (s *Session[L, R]) checkPeer(method string) error {
	if s.State() != StateActive {
		return nil
	}
	c, ok := requiredCapability(s.rules.outgoing, method)
	if !ok {
		return nil
	}
	s.mu.RLock()
	has := s.peer.Has(c)
	s.mu.RUnlock()
	if !has {
		return &CapabilityError{Side: s.rules.peer, Capability: c, Method: method}
	}
	return nil
}

func toJSONRPCError(err error) *jsonrpc.Error {
	var je *jsonrpc.Error
	if errors.As(err, &je) {
		return je
	}
	var conv interface{ JSONRPCError() *jsonrpc.Error }
	if errors.As(err, &conv) {
		return conv.JSONRPCError()
	}
	return jsonrpc.NewError(jsonrpc.ErrorCodeInternalError, err.Error(), nil)
}

// withProgressToken returns params with _meta.progressToken set to token.
// Params must encode to a JSON object.
func withProgressToken(params any, token any) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if params != nil {
		raw, ok := params.(json.RawMessage)
		if !ok {
			b, err := json.Marshal(params)
			if err != nil {
				return nil, fmt.Errorf("marshal params: %w", err)
			}
			raw = b
		}
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, fmt.Errorf("progress requires object params: %w", err)
			}
		}
	}
	meta := map[string]any{}
	if m, ok := obj["_meta"]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, fmt.Errorf("invalid _meta: %w", err)
		}
	}
	meta["progressToken"] = token
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	obj["_meta"] = b
	return json.Marshal(obj)
}
