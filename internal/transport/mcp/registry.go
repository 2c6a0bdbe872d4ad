package mcp

import (
	"context"
	"encoding/json"
	"sync"

	mcpserver "github.com/mark3labs/mcp-go/server"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/service/presence"
)

// Presence is the slice of the presence registry MCP sessions bind into.
type Presence interface {
	Announce(ctx context.Context, conn presence.Connection, agentID domainagent.ID)
	Release(ctx context.Context, conn presence.Connection) (domainagent.ID, bool)
	AgentOf(conn presence.Connection) (domainagent.ID, bool)
}

// sender delivers a notification to one MCP session. *mcpserver.MCPServer
// satisfies it.
type sender interface {
	SendNotificationToSpecificClient(sessionID, method string, params map[string]any) error
}

// SessionRegistry turns MCP sessions that called go_online into presence
// connections. Live pushes become "notifications/message" on the session.
//
// [SRP] Session ↔ connection bookkeeping only.
// [DIP] The presence registry sees sessions through presence.Connection.
type SessionRegistry struct {
	presence Presence

	mu       sync.Mutex
	sessions map[string]*sessionConn // session id → connection

	// srv is set after the MCP server is constructed (avoids circular init dependency).
	srvMu sync.RWMutex
	srv   sender
}

func NewSessionRegistry(p Presence) *SessionRegistry {
	return &SessionRegistry{presence: p, sessions: make(map[string]*sessionConn)}
}

// SetSender injects the mcp-go server after construction.
func (r *SessionRegistry) SetSender(s sender) {
	r.srvMu.Lock()
	r.srv = s
	r.srvMu.Unlock()
}

// Bind announces agentID on the session's connection, creating it on first use.
func (r *SessionRegistry) Bind(ctx context.Context, sessionID string, agentID domainagent.ID) {
	r.mu.Lock()
	conn, ok := r.sessions[sessionID]
	if !ok {
		conn = &sessionConn{session: sessionID, reg: r}
		r.sessions[sessionID] = conn
	}
	r.mu.Unlock()

	r.presence.Announce(ctx, conn, agentID)
}

// AgentOf reports the agent bound to the session, if it is still current.
func (r *SessionRegistry) AgentOf(sessionID string) (domainagent.ID, bool) {
	r.mu.Lock()
	conn, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return "", false
	}
	return r.presence.AgentOf(conn)
}

// Unregister releases the session's connection. It returns the agent that went
// offline, if any.
func (r *SessionRegistry) Unregister(ctx context.Context, sessionID string) (domainagent.ID, bool) {
	r.mu.Lock()
	conn, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if !ok {
		return "", false
	}
	return r.presence.Release(ctx, conn)
}

func (r *SessionRegistry) send(sessionID string, ev any) bool {
	r.srvMu.RLock()
	srv := r.srv
	r.srvMu.RUnlock()
	if srv == nil {
		return false
	}

	params, err := toParams(ev)
	if err != nil {
		return false
	}
	// mcp-go queues notifications without blocking and errors when the queue is full.
	return srv.SendNotificationToSpecificClient(sessionID, "notifications/message", params) == nil
}

// sessionConn implements presence.Connection for one MCP session.
type sessionConn struct {
	session string
	reg     *SessionRegistry
}

func (c *sessionConn) ID() string { return "mcp:" + c.session }

func (c *sessionConn) Notify(ev any) bool { return c.reg.send(c.session, ev) }

var _ presence.Connection = (*sessionConn)(nil)

var _ sender = (*mcpserver.MCPServer)(nil)

func toParams(ev any) (map[string]any, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return map[string]any{"data": ev}, nil
	}
	return params, nil
}
