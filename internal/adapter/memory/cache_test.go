package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestCache(clock *fakeClock) *Cache[string] {
	c := NewCache[string]()
	c.now = clock.now
	return c
}

func TestCache_GetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestCache(clock)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, c.Invalidate(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestCache(clock)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	clock.t = clock.t.Add(2 * time.Minute)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, c.Len())
}

func TestCache_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestCache(clock)

	assert.True(t, c.SetIfAbsent(ctx, "k", "first", time.Minute))
	assert.False(t, c.SetIfAbsent(ctx, "k", "second", time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	clock.t = clock.t.Add(2 * time.Minute)
	assert.True(t, c.SetIfAbsent(ctx, "k", "third", time.Minute), "expired entry may be replaced")
}

func TestCache_SetUnlessAndInvalidateIf(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestCache(clock)
	final := func(v string) bool { return v != "draft" }

	assert.True(t, c.SetUnless(ctx, "k", "draft", time.Minute, final))
	assert.True(t, c.SetUnless(ctx, "k", "done", time.Minute, final), "draft is replaced")
	assert.False(t, c.SetUnless(ctx, "k", "again", time.Minute, final), "final value is kept")

	assert.False(t, c.InvalidateIf(ctx, "k", func(v string) bool { return v == "draft" }))
	assert.True(t, c.InvalidateIf(ctx, "k", func(v string) bool { return v == "done" }))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestCache(clock)

	require.NoError(t, c.Set(ctx, "short", "a", time.Second))
	require.NoError(t, c.Set(ctx, "long", "b", time.Hour))
	clock.t = clock.t.Add(time.Minute)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}
