package eventbus

import (
	"context"

	"github.com/alanyang/agentlink/internal/domain/event"
)

type Handler func(ctx context.Context, e event.Event)

type Subscription interface {
	Unsubscribe()
}

// EventBus fans domain events out to in-process subscribers.
// [LSP] Postgres LISTEN/NOTIFY and the in-memory bus both satisfy this interface.
type EventBus interface {
	Publish(ctx context.Context, e event.Event) error
	Subscribe(ctx context.Context, topic event.Type, handler Handler) (Subscription, error)
}
