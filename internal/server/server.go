// Package server wires tools and resources into an MCP server and serves it
// over stdio, SSE or streamable HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"integritas-mcp/internal/events"
	"integritas-mcp/internal/render"
	"integritas-mcp/internal/resources"
	"integritas-mcp/internal/service"
	"integritas-mcp/internal/tools"
	"integritas-mcp/internal/upstream"
	"integritas-mcp/internal/version"
)

// Transport names.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

const shutdownTimeout = 5 * time.Second

const instructions = `Integritas stamps data on the Minima blockchain and verifies proof files.
Use stamp_data (file_url, file_path or file_hash) to stamp, stamp_status to follow UIDs until they are on chain,
and verify_data with a proof file to verify. Set the API key once with auth_set_api_key.
Results carry a structured envelope with kind, status, ids, timestamps and links.`

// Deps are the collaborators a Server needs.
type Deps struct {
	Registry    *tools.Registry
	Dispatcher  *tools.Dispatcher
	Service     *service.Service
	Renderer    render.Renderer
	Logger      *zap.Logger
	AccessToken string
}

// Server owns the MCP server and its transports.
type Server struct {
	mcp  *mcpserver.MCPServer
	deps Deps
}

// New builds the MCP server with every tool and resource registered.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := mcpserver.NewMCPServer(version.ServerName, version.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(instructions),
		mcpserver.WithToolHandlerMiddleware(requestIDMiddleware),
	)
	deps.Registry.Register(s, deps.Dispatcher)
	resources.Register(s, deps.Registry)
	return &Server{mcp: s, deps: deps}
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcpserver.MCPServer {
	return s.mcp
}

// requestIDMiddleware gives every tool call a correlation id.
func requestIDMiddleware(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if tools.RequestIDFrom(ctx) == "" {
			ctx = tools.WithRequestID(ctx, upstream.NewRequestID())
		}
		return next(ctx, request)
	}
}

func (s *Server) emit(event events.Event) {
	if s.deps.Renderer != nil {
		s.deps.Renderer.Emit(event)
	}
}

func (s *Server) started(transport, addr string) {
	s.emit(events.Event{Type: events.ServerStarted, Timestamp: time.Now(), Payload: events.ServerStartedPayload{
		Version:   version.Version,
		Transport: transport,
		Addr:      addr,
		Tools:     s.deps.Registry.Names(),
		StartedAt: time.Now(),
	}})
}

func (s *Server) stopped(transport string, err error) {
	reason := "shutdown"
	if err != nil {
		reason = err.Error()
	}
	s.emit(events.Event{Type: events.ServerStopped, Timestamp: time.Now(), Payload: events.ServerStoppedPayload{
		Transport: transport,
		Reason:    reason,
		StoppedAt: time.Now(),
	}})
}

// ServeStdio speaks MCP over in/out until ctx is done or in is closed.
// Logs go to the configured logger, never to out.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.deps.Logger))
	s.started(TransportStdio, "")
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.stopped(TransportStdio, err)
	return err
}

// ListenAndServe serves the HTTP or SSE transport on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, transport, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, transport, ln)
}

// Serve serves the HTTP or SSE transport on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string, ln net.Listener) error {
	addr := ln.Addr().String()
	handler, closeTransport, err := s.Handler(transport, "http://"+addr)
	if err != nil {
		_ = ln.Close()
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.started(transport, addr)

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = closeTransport(shutdownCtx)
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			err = fmt.Errorf("shutdown: %w", shutdownErr)
		}
		<-errCh
	}
	s.stopped(transport, err)
	return err
}
