// Package mcpserver exposes the pipeline executor as an MCP tool over stdio.
package mcpserver

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/marcelocantos/pipesh/internal/audit"
	"github.com/marcelocantos/pipesh/internal/builtin"
	"github.com/marcelocantos/pipesh/internal/cli"
	"github.com/marcelocantos/pipesh/internal/pipeline"
)

const toolRunLine = "run_line"

// Server runs one line at a time and returns what it printed.
type Server struct {
	mu    sync.Mutex // runs never overlap; they share the working directory
	out   *syncBuffer
	shell *cli.Shell
	mcp   *server.MCPServer
}

// New builds a server whose runs use reg for builtins. log may be nil.
func New(version string, reg *builtin.Registry, log *audit.Logger, logger *slog.Logger) *Server {
	out := &syncBuffer{}
	ex := pipeline.NewExecutor(nil, out, out, builtin.NewDispatcher(reg, out), logger)
	s := &Server{
		out: out,
		shell: &cli.Shell{
			Out:      out,
			Err:      out,
			Executor: ex,
			Audit:    log,
			Logger:   logger,
		},
	}

	s.mcp = server.NewMCPServer("pipesh", version, server.WithToolCapabilities(false))
	s.mcp.AddTool(mcp.NewTool(toolRunLine,
		mcp.WithDescription("Run one shell line: commands joined by |, arguments split on whitespace. Returns combined output."),
		mcp.WithString("line", mcp.Required(), mcp.Description("the pipeline to run, e.g. \"ls | wc -l\"")),
	), s.handleRunLine)
	return s
}

// Serve speaks MCP on standard input and output until it closes.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleRunLine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	line, err := req.RequireString("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.out.Reset()
	res := s.shell.Exec(ctx, line)
	text := s.out.String()
	if res.State == pipeline.Aborted {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

// syncBuffer is written by os/exec copy goroutines, including those of
// aborted runs still being reaped.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
