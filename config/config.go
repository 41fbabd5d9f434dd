// Package config loads settings for the mcp-probe command: a YAML file
// first, then environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Transport kinds understood by the probe.
const (
	TransportStdio  = "stdio"
	TransportWS     = "ws"
	TransportStream = "stream"
)

// Probe configures a probe run. Environment variables win over the file.
type Probe struct {
	// Transport is stdio, ws or stream. ENV: MCP_PROBE_TRANSPORT
	Transport string `yaml:"transport" env:"MCP_PROBE_TRANSPORT"`
	// Command is the server to spawn for the stdio transport.
	Command []string `yaml:"command"`
	// URL is the WebSocket endpoint. ENV: MCP_PROBE_URL
	URL string `yaml:"url" env:"MCP_PROBE_URL"`
	// SessionID attaches the stream transport to an existing session.
	// ENV: MCP_PROBE_SESSION_ID
	SessionID string `yaml:"sessionId" env:"MCP_PROBE_SESSION_ID"`
	// ClientName is reported in clientInfo. ENV: MCP_PROBE_CLIENT_NAME
	ClientName string `yaml:"clientName" env:"MCP_PROBE_CLIENT_NAME"`
	// Timeout bounds each request. ENV: MCP_PROBE_TIMEOUT
	Timeout time.Duration `yaml:"timeout" env:"MCP_PROBE_TIMEOUT"`
	// ProtocolVersions overrides the accepted versions, preferred first.
	ProtocolVersions []string `yaml:"protocolVersions"`
	// ClassifierRules is a rules file for the server's stderr. It is
	// reloaded on change. ENV: MCP_PROBE_CLASSIFIER_RULES
	ClassifierRules string `yaml:"classifierRules" env:"MCP_PROBE_CLASSIFIER_RULES"`
	// LogLevel is the probe's own slog level. ENV: MCP_PROBE_LOG_LEVEL
	LogLevel string `yaml:"logLevel" env:"MCP_PROBE_LOG_LEVEL"`
	// MetricsAddr serves Prometheus metrics when set. ENV: MCP_PROBE_METRICS_ADDR
	MetricsAddr string `yaml:"metricsAddr" env:"MCP_PROBE_METRICS_ADDR"`
}

// Default returns the settings used when nothing overrides them.
func Default() Probe {
	return Probe{
		Transport:  TransportStdio,
		ClientName: "mcp-probe",
		Timeout:    10 * time.Second,
		LogLevel:   "info",
	}
}

// Load reads path (when non-empty) over the defaults and then applies the
// environment. The result is not validated so that callers can apply
// command-line overrides first.
func Load(path string) (Probe, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Probe{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := Decode(f, &cfg); err != nil {
			return Probe{}, err
		}
	}
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Probe{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// Decode reads YAML from r into cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Probe) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks that the selected transport has what it needs.
func (p Probe) Validate() error {
	switch p.Transport {
	case TransportStdio:
		if len(p.Command) == 0 {
			return errors.New("stdio transport requires a command")
		}
	case TransportWS:
		if p.URL == "" {
			return errors.New("ws transport requires a url")
		}
	case TransportStream:
		if p.SessionID == "" {
			return errors.New("stream transport requires a session id")
		}
	default:
		return fmt.Errorf("unknown transport %q", p.Transport)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", p.Timeout)
	}
	if _, err := p.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (p Probe) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(p.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", p.LogLevel, err)
	}
	return l, nil
}
