package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/service/identity"
)

// setStore is an ExistenceChecker backed by a set; tests add issued ids to it.
type setStore struct {
	mu  sync.Mutex
	ids map[domainagent.ID]bool
	err error
	n   int
}

func newSetStore(ids ...domainagent.ID) *setStore {
	s := &setStore{ids: map[domainagent.ID]bool{}}
	for _, id := range ids {
		s.ids[id] = true
	}
	return s
}

func (s *setStore) Exists(_ context.Context, id domainagent.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.ids[id], s.err
}

func (s *setStore) add(id domainagent.ID) {
	s.mu.Lock()
	s.ids[id] = true
	s.mu.Unlock()
}

func TestIssueSequentialIdsAreDistinct(t *testing.T) {
	store := newSetStore()
	iss := identity.NewIssuer(store)
	ctx := context.Background()

	seen := map[domainagent.ID]bool{}
	for i := 0; i < 300; i++ {
		id, err := iss.Issue(ctx, domainagent.KindPersonal, "cn")
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s at iteration %d", id, i)
		seen[id] = true
		store.add(id)
	}
}

func TestIssueRetriesOnCollision(t *testing.T) {
	taken := domainagent.ID("AX-U-CN-0001")
	store := newSetStore(taken)

	candidates := []domainagent.ID{taken, taken, "AX-U-CN-0002"}
	calls := 0
	iss := identity.NewIssuer(store, identity.WithGenerator(func(domainagent.Kind, string) domainagent.ID {
		c := candidates[calls]
		calls++
		return c
	}))

	id, err := iss.Issue(context.Background(), domainagent.KindPersonal, "CN")
	require.NoError(t, err)
	assert.Equal(t, domainagent.ID("AX-U-CN-0002"), id)
	assert.Equal(t, 3, calls)
}

func TestIssueReturnsLastCandidateWhenExhausted(t *testing.T) {
	taken := domainagent.ID("AX-S-US-4242")
	store := newSetStore(taken)
	calls := 0
	iss := identity.NewIssuer(store, identity.WithGenerator(func(domainagent.Kind, string) domainagent.ID {
		calls++
		return taken
	}))

	id, err := iss.Issue(context.Background(), domainagent.KindSkill, "US")
	require.NoError(t, err)
	assert.Equal(t, taken, id)
	assert.Equal(t, identity.MaxAttempts, calls)
}

func TestIssueValidation(t *testing.T) {
	iss := identity.NewIssuer(newSetStore())
	ctx := context.Background()

	_, err := iss.Issue(ctx, "robot", "CN")
	assert.ErrorIs(t, err, domainagent.ErrInvalidKind)

	_, err = iss.Issue(ctx, domainagent.KindPersonal, "CHN")
	assert.ErrorIs(t, err, domainagent.ErrInvalidRegion)
}

func TestIssuePropagatesStoreErrors(t *testing.T) {
	store := newSetStore()
	store.err = errors.New("connection refused")
	iss := identity.NewIssuer(store)

	_, err := iss.Issue(context.Background(), domainagent.KindPersonal, "CN")
	assert.ErrorContains(t, err, "connection refused")
}

func TestIssuedIdsParse(t *testing.T) {
	iss := identity.NewIssuer(newSetStore())
	rapid.Check(t, func(rt *rapid.T) {
		kind := rapid.SampledFrom([]domainagent.Kind{domainagent.KindPersonal, domainagent.KindSkill}).Draw(rt, "kind")
		region := rapid.StringMatching(`[a-zA-Z]{2}`).Draw(rt, "region")

		id, err := iss.Issue(context.Background(), kind, region)
		if err != nil {
			rt.Fatalf("issue: %v", err)
		}
		parsed, err := domainagent.Parse(id)
		if err != nil {
			rt.Fatalf("issued id %q does not parse: %v", id, err)
		}
		if parsed.Kind != kind {
			rt.Fatalf("kind %s round-tripped as %s", kind, parsed.Kind)
		}
	})
}
