package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyang/agentlink/internal/domain/event"
	porteventbus "github.com/alanyang/agentlink/internal/port/eventbus"
)

const subscriptionBuffer = 256

// EventBus is the single-process implementation of port/eventbus.EventBus.
// Each subscription drains its own queue on one goroutine, so a handler sees
// events in publish order. A full queue drops the event rather than stalling
// the publisher.
type EventBus struct {
	mu   sync.RWMutex
	subs map[event.Type]map[*subscription]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[event.Type]map[*subscription]struct{})}
}

func (eb *EventBus) Publish(ctx context.Context, e event.Event) error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for sub := range eb.subs[e.Type] {
		select {
		case sub.queue <- e:
		default:
			slog.WarnContext(ctx, "event bus subscriber queue full, dropping event",
				"type", e.Type, "entity_id", e.EntityID)
		}
	}
	return nil
}

func (eb *EventBus) Subscribe(ctx context.Context, topic event.Type, handler porteventbus.Handler) (porteventbus.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		queue:  make(chan event.Event, subscriptionBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	eb.mu.Lock()
	if eb.subs[topic] == nil {
		eb.subs[topic] = make(map[*subscription]struct{})
	}
	eb.subs[topic][sub] = struct{}{}
	eb.mu.Unlock()

	go func() {
		defer func() {
			eb.mu.Lock()
			delete(eb.subs[topic], sub)
			eb.mu.Unlock()
			close(sub.done)
		}()
		for {
			select {
			case <-subCtx.Done():
				return
			case e := <-sub.queue:
				handler(subCtx, e)
			}
		}
	}()

	return sub, nil
}

type subscription struct {
	queue  chan event.Event
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}
