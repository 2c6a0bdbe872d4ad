package wire

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/event"
	porteventbus "github.com/alanyang/agentlink/internal/port/eventbus"
)

// StatusStore is the persisted side of presence.
type StatusStore interface {
	List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error)
	MarkOnline(ctx context.Context, id domainagent.ID) error
	MarkOffline(ctx context.Context, id domainagent.ID) error
}

// LiveChecker reports whether this process holds a live connection for id.
type LiveChecker interface {
	IsOnline(id domainagent.ID) bool
}

// presenceSync mirrors live presence into the stored profile status.
// Online is written immediately. Offline waits out a grace period so a quick
// reconnect never shows up as offline; a reconnect inside the window cancels it.
//
// Profiles still marked online when the process starts lost their connection
// with the previous process, so they get the same treatment with startupGrace.
type presenceSync struct {
	agents StatusStore
	live   LiveChecker
	grace  time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	timers map[domainagent.ID]*time.Timer
	subs   []porteventbus.Subscription
}

func startPresenceSync(
	ctx context.Context,
	bus porteventbus.EventBus,
	agents StatusStore,
	live LiveChecker,
	grace, startupGrace time.Duration,
) (*presenceSync, error) {
	p := &presenceSync{
		agents: agents,
		live:   live,
		grace:  grace,
		logger: slog.Default().With("component", "presence_sync"),
		timers: make(map[domainagent.ID]*time.Timer),
	}

	handlers := map[event.Type]porteventbus.Handler{
		event.TypeAgentOnline: func(ctx context.Context, e event.Event) {
			p.online(ctx, domainagent.ID(e.EntityID))
		},
		event.TypeAgentOffline: func(_ context.Context, e event.Event) {
			p.schedule(domainagent.ID(e.EntityID), p.grace)
		},
	}
	for typ, h := range handlers {
		sub, err := bus.Subscribe(ctx, typ, h)
		if err != nil {
			p.stop()
			return nil, fmt.Errorf("subscribing to %s: %w", typ, err)
		}
		p.subs = append(p.subs, sub)
	}

	// Startup scan: nothing is connected yet, so any stored online status is stale.
	status := domainagent.StatusOnline
	stale, err := agents.List(ctx, domainagent.ListFilters{Status: &status})
	if err != nil {
		p.logger.ErrorContext(ctx, "startup scan failed", "error", err)
	}
	for _, a := range stale {
		p.schedule(a.ID, startupGrace)
	}
	if len(stale) > 0 {
		p.logger.InfoContext(ctx, "startup scan scheduled offline timers", "count", len(stale))
	}

	return p, nil
}

func (p *presenceSync) online(ctx context.Context, id domainagent.ID) {
	p.mu.Lock()
	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()

	if err := p.agents.MarkOnline(ctx, id); err != nil {
		p.logger.ErrorContext(ctx, "mark online failed", "agent_id", id, "error", err)
	}
}

func (p *presenceSync) schedule(id domainagent.ID, grace time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[id]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(grace, func() {
		p.mu.Lock()
		if p.timers[id] != t {
			p.mu.Unlock()
			return
		}
		delete(p.timers, id)
		p.mu.Unlock()

		// Online and offline arrive on separate subscriptions, so a reconnect
		// can be observed before the disconnect it follows.
		if p.live.IsOnline(id) {
			return
		}
		if err := p.agents.MarkOffline(context.Background(), id); err != nil {
			p.logger.Error("mark offline failed", "agent_id", id, "error", err)
		}
	})
	p.timers[id] = t
}

func (p *presenceSync) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

// stop cancels subscriptions and pending timers. Pending offline writes are
// picked up by the next startup scan.
func (p *presenceSync) stop() {
	for _, sub := range p.subs {
		sub.Unsubscribe()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
}
