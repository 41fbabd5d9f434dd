package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
)

// LoggingThreshold returns the minimum level of log notifications sent to
// the peer.
func (s *Session[L, R]) LoggingThreshold() mcp.LoggingLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetLoggingThreshold changes the minimum level of log notifications sent
// to the peer.
func (s *Session[L, R]) SetLoggingThreshold(level mcp.LoggingLevel) error {
	if !mcp.IsValidLoggingLevel(level) {
		return fmt.Errorf("invalid logging level %q", level)
	}
	s.mu.Lock()
	s.threshold = level
	s.mu.Unlock()
	if s.cfg.levelVar != nil {
		s.cfg.levelVar.Set(slogLevel(level))
	}
	return nil
}

// Log sends a notifications/message to the peer when params.Level is at or
// above the threshold. Messages below it, or beyond the configured rate
// limit, are dropped before reaching the transport.
func (s *Session[L, R]) Log(ctx context.Context, params mcp.LoggingMessageParams) error {
	method := string(mcp.LoggingMessageNotificationMethod)
	if c, ok := requiredCapability(s.rules.notify, method); ok && !s.local.Has(c) {
		return &CapabilityError{Side: s.rules.name, Capability: c, Method: method}
	}
	if !params.Level.AtLeast(s.LoggingThreshold()) {
		s.cfg.metrics.LogDropped("threshold")
		return nil
	}
	if s.cfg.limiter != nil && !s.cfg.limiter.Allow() {
		s.cfg.metrics.LogDropped("rate")
		return nil
	}
	if len(params.Data) == 0 {
		params.Data = json.RawMessage("null")
	}
	return s.notify(ctx, method, params)
}

func (s *Session[L, R]) handleSetLevel(ctx context.Context, params json.RawMessage) (any, error) {
	var req mcp.SetLevelRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid params: %v", err), nil)
	}
	if err := s.SetLoggingThreshold(req.Level); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, err.Error(), nil)
	}
	s.log.DebugContext(ctx, "session.logging.set_level", slog.String("level", string(req.Level)))
	return mcp.EmptyResult{}, nil
}

func slogLevel(level mcp.LoggingLevel) slog.Level {
	switch level {
	case mcp.LoggingLevelDebug:
		return slog.LevelDebug
	case mcp.LoggingLevelInfo, mcp.LoggingLevelNotice:
		return slog.LevelInfo
	case mcp.LoggingLevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func mcpLevel(level slog.Level) mcp.LoggingLevel {
	switch {
	case level >= slog.LevelError+4:
		return mcp.LoggingLevelCritical
	case level >= slog.LevelError:
		return mcp.LoggingLevelError
	case level >= slog.LevelWarn:
		return mcp.LoggingLevelWarning
	case level >= slog.LevelInfo+2:
		return mcp.LoggingLevelNotice
	case level >= slog.LevelInfo:
		return mcp.LoggingLevelInfo
	default:
		return mcp.LoggingLevelDebug
	}
}
