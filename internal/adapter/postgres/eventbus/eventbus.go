package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/agentlink/internal/domain/event"
	porteventbus "github.com/alanyang/agentlink/internal/port/eventbus"
)

const reconnectDelay = time.Second

// EventBus carries domain events over Postgres LISTEN/NOTIFY so every server
// process sharing the database observes them.
type EventBus struct {
	pool   *pgxpool.Pool
	prefix string
}

func New(pool *pgxpool.Pool, prefix string) *EventBus {
	if prefix == "" {
		prefix = "agentlink"
	}
	return &EventBus{pool: pool, prefix: prefix}
}

// Publish sends an event via NOTIFY on the domain channel for the event type.
func (eb *EventBus) Publish(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	channel := eb.channelName(event.ChannelFor(e.Type))
	_, err = eb.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(payload))
	if err != nil {
		return fmt.Errorf("publishing event on channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe LISTENs on the domain channel that carries topic and invokes
// handler for every event of exactly that type. A dropped connection is
// re-acquired until ctx ends.
func (eb *EventBus) Subscribe(ctx context.Context, topic event.Type, handler porteventbus.Handler) (porteventbus.Subscription, error) {
	channel := eb.channelName(event.ChannelFor(topic))

	conn, err := eb.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for LISTEN: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("executing LISTEN on channel %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for {
			eb.listen(subCtx, conn, channel, topic, handler)
			if subCtx.Err() != nil {
				return
			}
			slog.WarnContext(subCtx, "event bus listener lost connection, reconnecting", "channel", channel)
			conn = eb.reacquire(subCtx, channel)
			if conn == nil {
				return
			}
		}
	}()

	return sub, nil
}

// listen blocks until ctx ends or the connection fails, then releases conn.
func (eb *EventBus) listen(ctx context.Context, conn *pgxpool.Conn, channel string, topic event.Type, handler porteventbus.Handler) {
	defer func() {
		conn.Exec(context.Background(), "UNLISTEN "+channel) //nolint:errcheck
		conn.Release()
	}()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return
		}

		var e event.Event
		if err := json.Unmarshal([]byte(notification.Payload), &e); err != nil {
			slog.WarnContext(ctx, "dropping malformed event", "channel", channel, "error", err)
			continue
		}
		if e.Type != topic {
			continue
		}
		handler(ctx, e)
	}
}

func (eb *EventBus) reacquire(ctx context.Context, channel string) *pgxpool.Conn {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
		conn, err := eb.pool.Acquire(ctx)
		if err != nil {
			continue
		}
		if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
			conn.Release()
			continue
		}
		return conn
	}
}

// channelName converts a domain Channel to a safe Postgres channel identifier.
func (eb *EventBus) channelName(ch event.Channel) string {
	return eb.prefix + "_" + string(ch)
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}
