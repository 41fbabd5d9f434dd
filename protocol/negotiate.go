package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
)

// Initialize performs the client side of the handshake. On success the
// server's capabilities are frozen for the life of the session and the
// session becomes active. When the server picks a protocol version this
// client does not support, Initialize returns a *VersionError and closes
// the session.
func (s *Session[L, R]) Initialize(ctx context.Context, opts ...RequestOption) (*mcp.InitializeResult, error) {
	if s.rules.name != RoleClient {
		return nil, fmt.Errorf("initialize: %w", ErrWrongRole)
	}
	if st := s.State(); st != StateNegotiating {
		return nil, fmt.Errorf("initialize: session is %s", st)
	}

	req := mcp.InitializeRequest{
		ProtocolVersion: s.cfg.versions[0],
		Capabilities:    any(s.local).(mcp.ClientCapabilities),
		ClientInfo:      s.info,
	}
	res, err := Call[mcp.InitializeResult](ctx, s, string(mcp.InitializeMethod), req, opts...)
	if err != nil {
		return nil, err
	}

	if !mcp.IsSupportedProtocolVersion(s.cfg.versions, res.ProtocolVersion) {
		verr := &VersionError{Requested: req.ProtocolVersion, Got: res.ProtocolVersion, Supported: s.cfg.versions}
		s.log.ErrorContext(s.logContext(ctx), "session.initialize.version_mismatch", slog.String("got", res.ProtocolVersion))
		_ = s.Close()
		return nil, verr
	}

	s.mu.Lock()
	s.peer = any(res.Capabilities).(R).Clone()
	s.hasPeer = true
	s.peerInfo = res.ServerInfo
	s.peerInstructions = res.Instructions
	s.protocolVersion = res.ProtocolVersion
	s.mu.Unlock()
	s.state.CompareAndSwap(int32(StateNegotiating), int32(StateActive))

	if err := s.notify(ctx, string(mcp.InitializedNotificationMethod), nil); err != nil {
		return nil, err
	}
	s.log.InfoContext(s.logContext(ctx), "session.initialize.ok",
		slog.String("server", res.ServerInfo.Name),
		slog.String("server_version", res.ServerInfo.Version),
	)
	return &res, nil
}

// serverInitialize answers the client's handshake request.
func serverInitialize(s *ServerSession) RequestHandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		var req mcp.InitializeRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid initialize params: %v", err), nil)
		}

		version := s.cfg.versions[0]
		if mcp.IsSupportedProtocolVersion(s.cfg.versions, req.ProtocolVersion) {
			version = req.ProtocolVersion
		}

		s.mu.Lock()
		if s.hasPeer {
			s.mu.Unlock()
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidRequest, "session already initialized", nil)
		}
		s.peer = req.Capabilities.Clone()
		s.hasPeer = true
		s.peerInfo = req.ClientInfo
		s.protocolVersion = version
		s.mu.Unlock()
		s.state.CompareAndSwap(int32(StateNegotiating), int32(StateActive))

		s.log.InfoContext(s.logContext(ctx), "session.initialize.ok",
			slog.String("client", req.ClientInfo.Name),
			slog.String("requested_version", req.ProtocolVersion),
		)
		return &mcp.InitializeResult{
			ProtocolVersion: version,
			Capabilities:    s.local.Clone(),
			ServerInfo:      s.info,
			Instructions:    s.cfg.instructions,
		}, nil
	}
}

// Ping checks that the peer is responsive.
func (s *Session[L, R]) Ping(ctx context.Context, opts ...RequestOption) error {
	_, err := s.Request(ctx, string(mcp.PingMethod), nil, opts...)
	return err
}
