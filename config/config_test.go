package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, `
transport: stdio
command: ["go", "run", "./examples/echo"]
timeout: 3s
protocolVersions: ["2025-03-26"]
logLevel: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(cfg.Command) != 3 || cfg.Timeout != 3*time.Second || cfg.ProtocolVersions[0] != "2025-03-26" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ClientName != "mcp-probe" {
		t.Fatalf("default client name lost: %q", cfg.ClientName)
	}
	if l, _ := cfg.SlogLevel(); l != slog.LevelDebug {
		t.Fatalf("level = %s", l)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "transport: stdio\ncommand: [server]\ntimeout: 3s\n")
	t.Setenv("MCP_PROBE_TRANSPORT", "ws")
	t.Setenv("MCP_PROBE_URL", "ws://localhost:8080/mcp")
	t.Setenv("MCP_PROBE_TIMEOUT", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != TransportWS || cfg.URL != "ws://localhost:8080/mcp" || cfg.Timeout != 250*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestUnknownKeysRejected(t *testing.T) {
	path := writeFile(t, "transport: stdio\ncommand: [x]\nbogus: true\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Probe)
		want string
	}{
		{"stdio without command", func(p *Probe) {}, "requires a command"},
		{"ws without url", func(p *Probe) { p.Transport = TransportWS }, "requires a url"},
		{"stream without session", func(p *Probe) { p.Transport = TransportStream }, "requires a session id"},
		{"unknown transport", func(p *Probe) { p.Transport = "carrier-pigeon" }, "unknown transport"},
		{"bad timeout", func(p *Probe) { p.Command = []string{"x"}; p.Timeout = 0 }, "timeout"},
		{"bad level", func(p *Probe) { p.Command = []string{"x"}; p.LogLevel = "loud" }, "log level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Default()
			tc.mod(&p)
			err := p.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEmptyFileKeepsDefaults(t *testing.T) {
	cfg := Default()
	if err := Decode(strings.NewReader("  \n"), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Transport != TransportStdio || cfg.Timeout != 10*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
}
