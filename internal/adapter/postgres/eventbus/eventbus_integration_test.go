//go:build integration

package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgeventbus "github.com/alanyang/agentlink/internal/adapter/postgres/eventbus"
	"github.com/alanyang/agentlink/internal/domain/event"
	"github.com/alanyang/agentlink/internal/testutil"
)

func TestEventBus_PublishSubscribeFiltersByType(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	bus := pgeventbus.New(pool, "agentlink_test")

	got := make(chan event.Event, 4)
	sub, err := bus.Subscribe(ctx, event.TypeAgentOnline, func(_ context.Context, e event.Event) {
		got <- e
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Same channel, different type: must be filtered out.
	require.NoError(t, bus.Publish(ctx, event.New(event.TypeAgentOffline, "AX-U-CN-0001")))
	require.NoError(t, bus.Publish(ctx, event.New(event.TypeAgentOnline, "AX-U-CN-0002")))

	select {
	case e := <-got:
		assert.Equal(t, event.TypeAgentOnline, e.Type)
		assert.Equal(t, "AX-U-CN-0002", e.EntityID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}

	select {
	case e := <-got:
		t.Fatalf("unexpected event %v", e)
	case <-time.After(100 * time.Millisecond):
	}
}
