package mcp

import (
	"context"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Server wraps the mark3labs/mcp-go MCPServer and its StreamableHTTPServer.
// [SRP] HTTP server lifecycle only (start, stop, session open/close).
//
//	Tools are registered in tools.go, session state in registry.go.
//
// [OCP] Adding new tools never requires changes to this file.
type Server struct {
	httpSrv *mcpserver.StreamableHTTPServer
	reg     *SessionRegistry
}

// New creates the MCP transport server. Sessions that go online are bound into p.
func New(p Presence, svc Services) *Server {
	s := &Server{reg: NewSessionRegistry(p)}

	hooks := &mcpserver.Hooks{}
	hooks.OnUnregisterSession = append(hooks.OnUnregisterSession, s.onSessionClose)

	mcpSrv := mcpserver.NewMCPServer(
		"agentlink",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithHooks(hooks),
	)

	// Inject the mcp-go server into the registry (breaks the init cycle).
	s.reg.SetSender(mcpSrv)

	RegisterTools(mcpSrv, s.reg, svc)

	s.httpSrv = mcpserver.NewStreamableHTTPServer(mcpSrv)
	return s
}

// Handler returns an http.Handler that serves the MCP endpoint.
func (s *Server) Handler() http.Handler {
	return s.httpSrv
}

func (s *Server) Registry() *SessionRegistry {
	return s.reg
}

func (s *Server) onSessionClose(ctx context.Context, session mcpserver.ClientSession) {
	agentID, ok := s.reg.Unregister(context.WithoutCancel(ctx), session.SessionID())
	if !ok {
		return
	}
	slog.InfoContext(ctx, "mcp: session closed, agent released", "session_id", session.SessionID(), "agent_id", agentID)
}
