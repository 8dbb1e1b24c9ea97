// Package mcptest provides test helpers for invoking goextract MCP tools
// with swappable transports: in-process (fast) or subprocess (full binary).
package mcptest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os/exec"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	internalmcp "github.com/mamaar/goextract/internal/mcp"
)

// Session wraps an MCP ClientSession with cleanup logic.
type Session struct {
	*mcpsdk.ClientSession
	cancel context.CancelFunc
	state  *internalmcp.MCPServer // non-nil only for in-process
}

// Close tears down the session.
func (s *Session) Close() {
	_ = s.ClientSession.Close()
	if s.cancel != nil {
		s.cancel()
	}
	if s.state != nil {
		s.state.Close()
	}
}

// Call invokes a tool and decodes its JSON text content into out. It
// returns the IsError flag of the result and the raw text.
func (s *Session) Call(ctx context.Context, t testing.TB, tool string, args map[string]any, out any) (bool, string) {
	t.Helper()
	result, err := s.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		t.Fatalf("mcptest: %s: %v", tool, err)
	}
	text := ""
	if len(result.Content) > 0 {
		if tc, ok := result.Content[0].(*mcpsdk.TextContent); ok {
			text = tc.Text
		}
	}
	if !result.IsError && out != nil {
		if err := json.Unmarshal([]byte(text), out); err != nil {
			t.Fatalf("mcptest: %s: decode %q: %v", tool, text, err)
		}
	}
	return result.IsError, text
}

// Transport selects how the MCP server is reached.
type Transport interface {
	connect(ctx context.Context, t testing.TB) (*Session, error)
}

// Dial connects to an MCP server using the given transport,
// then calls load_workspace with workspacePath.
func Dial(ctx context.Context, t testing.TB, transport Transport, workspacePath string) *Session {
	t.Helper()
	sess, err := transport.connect(ctx, t)
	if err != nil {
		t.Fatalf("mcptest.Dial: connect: %v", err)
	}
	t.Cleanup(sess.Close)

	if isErr, text := sess.Call(ctx, t, "load_workspace", map[string]any{"path": workspacePath}, nil); isErr {
		t.Fatalf("mcptest.Dial: load_workspace returned error: %s", text)
	}
	return sess
}

// inProcess is the in-process transport using NewInMemoryTransports.
type inProcess struct {
	opts []internalmcp.Option
}

// InProcess returns a transport that runs the MCP server in-process.
func InProcess(opts ...internalmcp.Option) Transport { return inProcess{opts: opts} }

func (p inProcess) connect(ctx context.Context, t testing.TB) (*Session, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	state := internalmcp.NewMCPServer(logger, p.opts...)

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "goextract", Version: "test"}, nil)
	internalmcp.RegisterAllTools(server, state)

	serverT, clientT := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(ctx)
	go func() { _ = server.Run(ctx, serverT) }()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		cancel()
		state.Close()
		return nil, err
	}
	return &Session{ClientSession: session, cancel: cancel, state: state}, nil
}

// subprocess is the subprocess transport using CommandTransport.
type subprocess struct {
	binPath string
	args    []string
}

// Subprocess returns a transport that shells out to the given binary.
func Subprocess(bin string, args ...string) Transport { return subprocess{binPath: bin, args: args} }

func (sp subprocess) connect(ctx context.Context, t testing.TB) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, sp.binPath, sp.args...)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Session{ClientSession: session, cancel: cancel}, nil
}
