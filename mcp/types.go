package mcp

import (
	"fmt"
	"slices"
)

// LatestProtocolVersion is the latest version of the protocol.
const LatestProtocolVersion = "2025-06-18"

// SupportedProtocolVersions lists the protocol revisions accepted during
// negotiation, newest first.
var SupportedProtocolVersions = []string{
	LatestProtocolVersion,
	"2025-03-26",
	"2024-11-05",
	"2024-10-07",
}

// IsSupportedProtocolVersion reports whether v appears in supported.
func IsSupportedProtocolVersion(supported []string, v string) bool {
	return slices.Contains(supported, v)
}

// LoggingLevel represents structured log severity.
type LoggingLevel string

// Logging level constants, lowest to highest severity.
const (
	LoggingLevelDebug     LoggingLevel = "debug"
	LoggingLevelInfo      LoggingLevel = "info"
	LoggingLevelNotice    LoggingLevel = "notice"
	LoggingLevelWarning   LoggingLevel = "warning"
	LoggingLevelError     LoggingLevel = "error"
	LoggingLevelCritical  LoggingLevel = "critical"
	LoggingLevelAlert     LoggingLevel = "alert"
	LoggingLevelEmergency LoggingLevel = "emergency"
)

// LoggingLevels lists every level in ascending severity.
var LoggingLevels = []LoggingLevel{
	LoggingLevelDebug,
	LoggingLevelInfo,
	LoggingLevelNotice,
	LoggingLevelWarning,
	LoggingLevelError,
	LoggingLevelCritical,
	LoggingLevelAlert,
	LoggingLevelEmergency,
}

// IsValidLoggingLevel reports whether the provided level is one of the
// protocol-defined syslog severities.
func IsValidLoggingLevel(level LoggingLevel) bool {
	return level.Severity() >= 0
}

// Severity returns the rank of the level (0 for debug through 7 for
// emergency) or -1 for an unknown level.
func (l LoggingLevel) Severity() int {
	return slices.Index(LoggingLevels, l)
}

// AtLeast reports whether l is at least as severe as threshold. Unknown
// levels never pass.
func (l LoggingLevel) AtLeast(threshold LoggingLevel) bool {
	s := l.Severity()
	return s >= 0 && s >= threshold.Severity()
}

// ParseLoggingLevel validates s as a LoggingLevel.
func ParseLoggingLevel(s string) (LoggingLevel, error) {
	l := LoggingLevel(s)
	if !IsValidLoggingLevel(l) {
		return "", fmt.Errorf("invalid logging level %q", s)
	}
	return l, nil
}

// ImplementationInfo describes the implementation name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitzero"`
}

// BaseMetadata carries optional metadata for responses.
type BaseMetadata struct {
	Meta map[string]any `json:"_meta,omitempty"`
}

// EmptyResult is returned by requests that carry no result payload.
type EmptyResult struct {
	BaseMetadata
}
