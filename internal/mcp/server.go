// Package mcp exposes the meeting store through a Model Context Protocol
// server.  All tools are read-only with respect to the cache file; the
// only mutable state is the store's memoized snapshot and the derived
// search index.
package mcp

// In this file: MCP server construction and transport management.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/oviedran/granola-mcp/internal/index"
	"github.com/oviedran/granola-mcp/internal/store"
)

const (
	serverName    = "granola-mcp"
	serverVersion = "1.0.0"
)

// Transport selects how the MCP server communicates with its client.
type Transport string

const (
	// TransportStdio uses stdin/stdout for communication (default,
	// suitable for local agent integrations such as Claude Desktop).
	TransportStdio Transport = "stdio"
	// TransportHTTP uses Streamable HTTP transport (suitable for remote
	// agents or multiple concurrent clients).
	TransportHTTP Transport = "http"
)

// Server wraps an MCP server, the meeting store it serves, and the
// optional full-text index.
type Server struct {
	mcp    *mcpsrv.MCPServer
	store  *store.Store
	idx    *index.Index
	logger *slog.Logger

	idxMu   sync.Mutex      // guards indexed
	indexed *store.Snapshot // snapshot the index was last built from
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.  Nil resets to slog.Default.
func WithLogger(lg *slog.Logger) Option {
	return func(s *Server) {
		if lg == nil {
			lg = slog.Default()
		}
		s.logger = lg
	}
}

// WithIndex attaches a full-text index used by search_meetings.  Without
// one, search falls back to a linear scan over the snapshot.
func WithIndex(ix *index.Index) Option {
	return func(s *Server) {
		s.idx = ix
	}
}

// New creates a new MCP server backed by the given meeting store.  The
// server is populated with all tools but does not start listening until
// one of the Serve* methods is called.
func New(st *store.Store, opts ...Option) *Server {
	s := &Server{
		store:  st,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mcpServer := mcpsrv.NewMCPServer(
		serverName,
		serverVersion,
		mcpsrv.WithInstructions(instructions(st)),
	)
	for _, t := range s.tools() {
		mcpServer.AddTool(t.Tool, t.Handler)
	}
	s.mcp = mcpServer
	return s
}

// instructions returns the server instructions describing the data source
// to the connecting agent.
func instructions(st *store.Store) string {
	return fmt.Sprintf(`You are connected to a Granola MCP server.

The cache file %q contains the meetings recorded by the Granola desktop
application.  Available tools allow you to:
- List and filter meetings (paginated)
- Get a single meeting with notes and folder information
- Full-text search across titles, notes, and participants
- Read a meeting transcript
- Export a meeting as Markdown
- Aggregate meeting counts per day or week
- Check cache status and force a cache refresh

All data is read-only.  Timestamps are ISO 8601 strings with an explicit
UTC offset (e.g. "2025-02-14T10:30:00+00:00").
`, st.Path())
}

// ServeStdio runs the MCP server over stdin/stdout until ctx is
// cancelled.  This is the standard transport for local agent
// integrations.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := mcpsrv.NewStdioServer(s.mcp)
	s.logger.InfoContext(ctx, "mcp server listening on stdio")
	if err := srv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

// ServeHTTP runs the MCP server as a Streamable HTTP server on addr until
// ctx is cancelled.  addr is a host:port string such as "127.0.0.1:8720".
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpSrv := &http.Server{Addr: addr}
	streamSrv := mcpsrv.NewStreamableHTTPServer(s.mcp,
		mcpsrv.WithStreamableHTTPServer(httpSrv),
	)

	s.logger.InfoContext(ctx, "mcp server listening on http", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := streamSrv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("mcp http server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "mcp server shutting down")
		if err := streamSrv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("mcp http server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// tools returns all MCP tools that this server exposes.
func (s *Server) tools() []mcpsrv.ServerTool {
	return []mcpsrv.ServerTool{
		s.toolListMeetings(),
		s.toolGetMeeting(),
		s.toolSearchMeetings(),
		s.toolGetTranscript(),
		s.toolExportMarkdown(),
		s.toolMeetingStats(),
		s.toolCacheStatus(),
		s.toolRefreshCache(),
	}
}

// snapshot loads the current snapshot and, when an index is attached,
// makes sure the index was built from that snapshot.
func (s *Server) snapshot(ctx context.Context) (*store.Snapshot, error) {
	sn, err := s.store.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	if s.idx == nil {
		return sn, nil
	}
	s.idxMu.Lock()
	defer s.idxMu.Unlock()
	if s.indexed != sn {
		// The index is derived data: a failed rebuild must not take the
		// snapshot down with it, search just falls back to the linear scan.
		if err := s.idx.Rebuild(ctx, sn.Meetings); err != nil {
			s.logger.WarnContext(ctx, "mcp: index rebuild failed, search falls back to scan", "error", err)
			return sn, nil
		}
		s.indexed = sn
	}
	return sn, nil
}

// resultText wraps text in a successful CallToolResult.
func resultText(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}

// resultErr wraps an error in a CallToolResult with IsError=true.
func resultErr(err error) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(err.Error())},
		IsError: true,
	}
}

// resultJSON serialises v to JSON and returns it as a CallToolResult.
func resultJSON(v any) (*mcplib.CallToolResult, error) {
	return mcplib.NewToolResultJSON(v)
}

// stringArg extracts a named string argument from a tool call request.
// Returns ("", false) if the argument is absent or not a string.
func stringArg(req mcplib.CallToolRequest, name string) (string, bool) {
	args := req.GetArguments()
	if args == nil {
		return "", false
	}
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// intArg extracts a named int argument from a tool call request.  The MCP
// protocol serialises numbers as float64, so we convert accordingly.
func intArg(req mcplib.CallToolRequest, name string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	v, ok := args[name]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return defaultVal
}

// listArg extracts a comma-separated string argument as a slice of
// trimmed, non-empty values.
func listArg(req mcplib.CallToolRequest, name string) []string {
	raw, ok := stringArg(req, name)
	if !ok || raw == "" {
		return nil
	}
	return splitList(raw)
}
