package testutil

import (
	"context"
	"sync"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/event"
)

// CaptureConn is a presence.Connection that records every frame it is offered.
// It is safe for concurrent use.
type CaptureConn struct {
	id string

	mu     sync.Mutex
	frames []any
	// Full makes Notify drop frames, as a saturated send buffer would.
	Full bool
}

func NewCaptureConn(id string) *CaptureConn { return &CaptureConn{id: id} }

func (c *CaptureConn) ID() string { return c.id }

func (c *CaptureConn) Notify(ev any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Full {
		return false
	}
	c.frames = append(c.frames, ev)
	return true
}

// Frames returns a copy of everything received.
func (c *CaptureConn) Frames() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.frames...)
}

// Pushes returns received frames of the given type.
func (c *CaptureConn) Pushes(t event.PushType) []event.Push {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Push
	for _, f := range c.frames {
		if p, ok := f.(event.Push); ok && p.Event == t {
			out = append(out, p)
		}
	}
	return out
}

// Reset clears all recorded frames.
func (c *CaptureConn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// NotifyCall records a single notification delivered by CaptureNotifier.
type NotifyCall struct {
	AgentID domainagent.ID
	Event   any
}

// CaptureNotifier implements port/notifier.AgentNotifier. Agents listed in
// Online are reported as reachable; every call is recorded either way.
type CaptureNotifier struct {
	mu     sync.Mutex
	Online map[domainagent.ID]bool
	Calls  []NotifyCall
}

func (c *CaptureNotifier) NotifyAgent(_ context.Context, agentID domainagent.ID, ev any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, NotifyCall{AgentID: agentID, Event: ev})
	return c.Online[agentID]
}

// AgentNotifications returns all calls made for a specific agent.
func (c *CaptureNotifier) AgentNotifications(agentID domainagent.ID) []NotifyCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []NotifyCall
	for _, call := range c.Calls {
		if call.AgentID == agentID {
			out = append(out, call)
		}
	}
	return out
}
