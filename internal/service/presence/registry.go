// Package presence tracks which agents are reachable over a live connection.
//
// The registry is the single source of truth for reachability. It holds at
// most one connection per agent and at most one agent per connection, is never
// persisted, and starts empty on every process start.
package presence

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/event"
	"github.com/alanyang/agentlink/internal/metrics"
	portbus "github.com/alanyang/agentlink/internal/port/eventbus"
)

// Connection is one live transport session.
// Notify must never block; it reports false when the frame was dropped.
type Connection interface {
	ID() string
	Notify(event any) bool
}

type entry struct {
	conn        Connection
	agentID     domainagent.ID
	connectedAt time.Time
}

// Registry implements port/notifier.AgentNotifier.
//
// [SRP] Connection bookkeeping and live dispatch only.
// [DIP] Router and coordinator see it through the notifier port.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*entry         // connection id → entry
	byAgent map[domainagent.ID]string // agent id → connection id

	bus     portbus.EventBus
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. bus and m may be nil.
func NewRegistry(bus portbus.EventBus, m *metrics.Collector) *Registry {
	return &Registry{
		conns:   make(map[string]*entry),
		byAgent: make(map[domainagent.ID]string),
		bus:     bus,
		metrics: m,
		logger:  slog.Default().With("component", "presence"),
	}
}

// Connect attaches a connection with no bound agent.
func (r *Registry) Connect(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; !ok {
		r.conns[conn.ID()] = &entry{conn: conn, connectedAt: time.Now().UTC()}
	}
}

// Announce binds conn to agentID. A previous connection for the same agent is
// dropped from the registry without being closed. A connection that was bound
// to a different agent releases that agent first.
func (r *Registry) Announce(ctx context.Context, conn Connection, agentID domainagent.ID) {
	var wentOffline domainagent.ID

	r.mu.Lock()
	e, ok := r.conns[conn.ID()]
	if !ok {
		e = &entry{conn: conn, connectedAt: time.Now().UTC()}
		r.conns[conn.ID()] = e
	}
	e.conn = conn

	if e.agentID != "" && e.agentID != agentID && r.byAgent[e.agentID] == conn.ID() {
		delete(r.byAgent, e.agentID)
		wentOffline = e.agentID
	}
	if prev, ok := r.byAgent[agentID]; ok && prev != conn.ID() {
		delete(r.conns, prev)
	}
	e.agentID = agentID
	r.byAgent[agentID] = conn.ID()
	online := len(r.byAgent)
	r.mu.Unlock()

	r.metrics.SetOnline(online)
	if wentOffline != "" {
		r.changed(ctx, wentOffline, domainagent.StatusOffline)
	}
	r.changed(ctx, agentID, domainagent.StatusOnline)
}

// Lookup returns the agent's live connection, if any.
func (r *Registry) Lookup(agentID domainagent.ID) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byAgent[agentID]
	if !ok {
		return nil, false
	}
	e, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// AgentOf returns the agent currently bound to conn. A connection replaced by a
// newer announce for the same agent is no longer bound.
func (r *Registry) AgentOf(conn Connection) (domainagent.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[conn.ID()]
	if !ok || e.agentID == "" || r.byAgent[e.agentID] != conn.ID() {
		return "", false
	}
	return e.agentID, true
}

// Release tears down conn. The agent entry is removed only when it still points
// at conn, so a late disconnect from a replaced connection is a no-op.
// It returns the agent that went offline, if any.
func (r *Registry) Release(ctx context.Context, conn Connection) (domainagent.ID, bool) {
	r.mu.Lock()
	e, ok := r.conns[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.conns, conn.ID())
	agentID := e.agentID
	evicted := agentID != "" && r.byAgent[agentID] == conn.ID()
	if evicted {
		delete(r.byAgent, agentID)
	}
	online := len(r.byAgent)
	r.mu.Unlock()

	if !evicted {
		return "", false
	}
	r.metrics.SetOnline(online)
	r.changed(ctx, agentID, domainagent.StatusOffline)
	return agentID, true
}

// NotifyAgent implements port/notifier.AgentNotifier.
func (r *Registry) NotifyAgent(_ context.Context, agentID domainagent.ID, ev any) bool {
	conn, ok := r.Lookup(agentID)
	if !ok {
		return false // not connected
	}
	r.push(conn, ev)
	return true
}

// Broadcast offers ev to every attached connection.
func (r *Registry) Broadcast(ev any) {
	r.mu.RLock()
	targets := make([]Connection, 0, len(r.conns))
	for _, e := range r.conns {
		targets = append(targets, e.conn)
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		r.push(conn, ev)
	}
}

// Online lists agents with a live connection, sorted.
func (r *Registry) Online() []domainagent.ID {
	r.mu.RLock()
	out := make([]domainagent.ID, 0, len(r.byAgent))
	for id := range r.byAgent {
		out = append(out, id)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (r *Registry) IsOnline(agentID domainagent.ID) bool {
	_, ok := r.Lookup(agentID)
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAgent)
}

func (r *Registry) push(conn Connection, ev any) {
	if conn.Notify(ev) {
		r.metrics.LivePush("queued")
		return
	}
	r.metrics.LivePush("dropped")
	r.logger.Warn("live push dropped", "connection", conn.ID())
}

func (r *Registry) changed(ctx context.Context, agentID domainagent.ID, status domainagent.Status) {
	r.Broadcast(event.NewPush(event.PushPresence, event.Presence{AgentID: string(agentID), Status: string(status)}))

	if r.bus == nil {
		return
	}
	typ := event.TypeAgentOnline
	if status == domainagent.StatusOffline {
		typ = event.TypeAgentOffline
	}
	if err := r.bus.Publish(ctx, event.New(typ, string(agentID))); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish presence event", "agent_id", agentID, "error", err)
	}
}
