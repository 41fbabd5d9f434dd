// Command mcp-probe connects to a server, performs the handshake, pings it
// and lists its tools. It prints a JSON report on stdout.
//
// Usage:
//
//	mcp-probe [-config probe.yaml] [-- command args...]
//
// Settings come from the config file and MCP_PROBE_* environment variables.
// Arguments after the flags replace the configured command.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ggoodman/mcp-peer-go/config"
	"github.com/ggoodman/mcp-peer-go/mcp"
	"github.com/ggoodman/mcp-peer-go/metrics"
	"github.com/ggoodman/mcp-peer-go/pagination"
	"github.com/ggoodman/mcp-peer-go/protocol"
	"github.com/ggoodman/mcp-peer-go/transport"
	"github.com/ggoodman/mcp-peer-go/transport/classify"
	"github.com/ggoodman/mcp-peer-go/transport/stdio"
	"github.com/ggoodman/mcp-peer-go/transport/stream"
	"github.com/ggoodman/mcp-peer-go/transport/stream/redishost"
	"github.com/ggoodman/mcp-peer-go/transport/ws"
)

// Report is what the probe prints.
type Report struct {
	ProbeID         string                 `json:"probeId"`
	ProtocolVersion string                 `json:"protocolVersion"`
	Server          mcp.ImplementationInfo `json:"server"`
	Capabilities    mcp.ServerCapabilities `json:"capabilities"`
	Instructions    string                 `json:"instructions,omitempty"`
	PingMs          int64                  `json:"pingMs"`
	Tools           []Tool                 `json:"tools,omitempty"`
}

// Tool is the subset of a tools/list entry the probe reports.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// maxToolPages bounds tools/list against a server that never stops paging.
const maxToolPages = 1000

func main() {
	configPath := flag.String("config", os.Getenv("MCP_PROBE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcp-probe:", err)
		os.Exit(2)
	}
	level, _ := cfg.SlogLevel()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := run(ctx, cfg, log)
	if err != nil {
		log.Error("probe.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func loadConfig(path string, args []string) (config.Probe, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Probe{}, err
	}
	if len(args) > 0 {
		cfg.Transport = config.TransportStdio
		cfg.Command = args
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Probe, log *slog.Logger) (*Report, error) {
	probeID := uuid.NewString()
	log = log.With(slog.String("probe_id", probeID))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("probe.metrics.fail", slog.String("err", err.Error()))
			}
		}()
		defer srv.Close()
	}

	t, cleanup, err := dial(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	opts := []protocol.Option{
		protocol.WithLogger(log),
		protocol.WithSessionID(probeID),
		protocol.WithDefaultTimeout(cfg.Timeout),
		protocol.WithMetrics(m),
		protocol.WithErrorSink(func(err error) { log.Warn("probe.session.error", slog.String("err", err.Error())) }),
	}
	if len(cfg.ProtocolVersions) > 0 {
		opts = append(opts, protocol.WithSupportedVersions(cfg.ProtocolVersions...))
	}
	client := protocol.NewClient(t, mcp.ImplementationInfo{Name: cfg.ClientName, Version: "0.1.0"}, mcp.ClientCapabilities{}, opts...)
	defer client.Close()

	err = client.SetNotificationHandler(string(mcp.LoggingMessageNotificationMethod), func(ctx context.Context, params json.RawMessage) error {
		var p mcp.LoggingMessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			return err
		}
		log.InfoContext(ctx, "probe.server.log", slog.String("level", string(p.Level)), slog.String("logger", p.Logger), slog.String("data", string(p.Data)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := client.Start(ctx); err != nil {
		return nil, err
	}
	res, err := client.Initialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	report := &Report{
		ProbeID:         probeID,
		ProtocolVersion: res.ProtocolVersion,
		Server:          res.ServerInfo,
		Capabilities:    res.Capabilities,
		Instructions:    res.Instructions,
	}

	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	report.PingMs = time.Since(start).Milliseconds()

	if res.Capabilities.Has(mcp.CapabilityTools) {
		tools, err := pagination.Collect(ctx, func(ctx context.Context, cursor *string) (pagination.Page[Tool], error) {
			var req mcp.PaginatedRequest
			if cursor != nil {
				req.Cursor = *cursor
			}
			page, err := protocol.Call[listToolsResult](ctx, client, string(mcp.ToolsListMethod), req)
			if err != nil {
				return pagination.Page[Tool]{}, err
			}
			if page.NextCursor == "" {
				return pagination.NewPage(page.Tools), nil
			}
			return pagination.NewPage(page.Tools, pagination.WithNextCursor[Tool](page.NextCursor)), nil
		}, pagination.WithMaxPages(maxToolPages))
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		report.Tools = tools
	}
	return report, nil
}

// dial builds the configured transport and a cleanup for resources it owns
// beyond the transport itself.
func dial(ctx context.Context, cfg config.Probe, log *slog.Logger) (transport.Transport, func(), error) {
	switch cfg.Transport {
	case config.TransportWS:
		t, err := ws.Dial(ctx, cfg.URL, nil, ws.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return t, func() {}, nil

	case config.TransportStream:
		host, err := redishost.NewFromEnv(ctx)
		if err != nil {
			return nil, nil, err
		}
		return stream.New(host, cfg.SessionID, stream.SideClient, stream.WithLogger(log)), func() { _ = host.Close() }, nil

	default:
		opts := []stdio.Option{stdio.WithLogger(log)}
		cleanup := func() {}
		if cfg.ClassifierRules != "" {
			watchCtx, cancel := context.WithCancel(ctx)
			wc, err := classify.Watch(watchCtx, cfg.ClassifierRules, log)
			if err != nil {
				cancel()
				return nil, nil, err
			}
			opts = append(opts, stdio.WithClassifier(wc))
			cleanup = cancel
		}
		cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
		t, err := stdio.Command(cmd, opts...)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return t, cleanup, nil
	}
}
