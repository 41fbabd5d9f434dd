// Package classify sorts lines read from a diagnostic side channel (a child
// process's stderr, say) into severities. A Fatal line tears the owning
// transport down; every other severity is only logged.
package classify

import (
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity is the classification of one side-channel line.
type Severity int

const (
	Ignore Severity = iota
	Debug
	Info
	Warning
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Ignore:
		return "ignore"
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// SlogLevel maps the severity onto the level used when logging the line.
// Ignore has no level and reports false.
func (s Severity) SlogLevel() (slog.Level, bool) {
	switch s {
	case Debug:
		return slog.LevelDebug, true
	case Info:
		return slog.LevelInfo, true
	case Warning:
		return slog.LevelWarn, true
	case Fatal:
		return slog.LevelError, true
	}
	return 0, false
}

// ParseSeverity parses the lower-case name of a severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ignore":
		return Ignore, nil
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warning", "warn":
		return Warning, nil
	case "fatal":
		return Fatal, nil
	}
	return Ignore, fmt.Errorf("unknown severity %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Severity) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Classifier assigns a severity to a side-channel line.
type Classifier interface {
	Classify(line string) Severity
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(line string) Severity

// Classify implements Classifier.
func (f ClassifierFunc) Classify(line string) Severity { return f(line) }

// Default returns the built-in classifier. Go runtime crash banners are
// Fatal, lines mentioning warnings or errors are Warning, lines mentioning
// debug are Debug, blank lines are ignored and everything else is Info.
func Default() Classifier {
	return ClassifierFunc(classifyDefault)
}

func classifyDefault(line string) Severity {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Ignore
	}
	if strings.HasPrefix(trimmed, "panic:") || strings.HasPrefix(trimmed, "fatal error:") {
		return Fatal
	}
	lower := strings.ToLower(trimmed)
	switch {
	case strings.Contains(lower, "warn"), strings.Contains(lower, "error"):
		return Warning
	case strings.Contains(lower, "debug"):
		return Debug
	}
	return Info
}
