package protocol_test

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
	"github.com/ggoodman/mcp-peer-go/mcp"
	"github.com/ggoodman/mcp-peer-go/protocol"
	"github.com/ggoodman/mcp-peer-go/transport"
	"github.com/ggoodman/mcp-peer-go/transport/stdio"
	"github.com/ggoodman/mcp-peer-go/transport/transporttest"
)

var (
	clientInfo = mcp.ImplementationInfo{Name: "test-client", Version: "0.0.1"}
	serverInfo = mcp.ImplementationInfo{Name: "test-server", Version: "0.0.1"}
)

func pipePair(t *testing.T) (transport.Transport, transport.Transport) {
	t.Helper()
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	return stdio.New(r1, w2), stdio.New(r2, w1)
}

type pairConfig struct {
	clientCaps mcp.ClientCapabilities
	serverCaps mcp.ServerCapabilities
	clientOpts []protocol.Option
	serverOpts []protocol.Option
	setup      func(c *protocol.ClientSession, s *protocol.ServerSession)
	noInit     bool
}

// newPair connects a client and a server session over an in-memory pipe and
// completes the handshake.
func newPair(t *testing.T, pc pairConfig) (*protocol.ClientSession, *protocol.ServerSession) {
	t.Helper()
	ct, st := pipePair(t)
	client := protocol.NewClient(ct, clientInfo, pc.clientCaps, pc.clientOpts...)
	server := protocol.NewServer(st, serverInfo, pc.serverCaps, pc.serverOpts...)
	if pc.setup != nil {
		pc.setup(client, server)
	}
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	if err := server.Start(t.Context()); err != nil {
		t.Fatalf("server start: %v", err)
	}
	if err := client.Start(t.Context()); err != nil {
		t.Fatalf("client start: %v", err)
	}
	if !pc.noInit {
		if _, err := client.Initialize(t.Context()); err != nil {
			t.Fatalf("initialize: %v", err)
		}
	}
	return client, server
}

// rawPeer is the far end of a session driven by hand.
type rawPeer struct {
	t   *testing.T
	tr  transport.Transport
	rec *transporttest.Recorder
}

func newRawPeer(t *testing.T, opts ...stdio.Option) (*rawPeer, transport.Transport) {
	t.Helper()
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	sessionSide := stdio.New(r1, w2, opts...)
	peerSide := stdio.New(r2, w1)
	rec := transporttest.NewRecorder()
	peerSide.SetHandlers(rec.Handlers())
	if err := peerSide.Start(t.Context()); err != nil {
		t.Fatalf("peer start: %v", err)
	}
	t.Cleanup(func() { _ = peerSide.Close() })
	return &rawPeer{t: t, tr: peerSide, rec: rec}, sessionSide
}

func (p *rawPeer) send(raw string) {
	p.t.Helper()
	if err := p.tr.Send(p.t.Context(), jsonrpc.Message(raw)); err != nil {
		p.t.Fatalf("peer send: %v", err)
	}
}

// wait returns the nth message (1-based) the peer received, decoded.
func (p *rawPeer) wait(n int) *jsonrpc.AnyMessage {
	p.t.Helper()
	msgs := p.rec.WaitMessages(p.t, n, 2*time.Second)
	msg, err := jsonrpc.Decode(msgs[n-1])
	if err != nil {
		p.t.Fatalf("decode %s: %v", msgs[n-1], err)
	}
	return msg
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
