package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
)

// AgentReader is the slice of the agent repository the lookup cache needs.
type AgentReader interface {
	GetByID(ctx context.Context, id domainagent.ID) (domainagent.Agent, error)
}

// CachedLookup implements port/agent.IdentityLookup with a short-lived cache
// in front of the agent repository. Identities are never deleted, so only
// positive results are cached.
type CachedLookup struct {
	repo  AgentReader
	cache *Cache[string]
	ttl   time.Duration
}

func NewCachedLookup(repo AgentReader, ttl time.Duration) *CachedLookup {
	return &CachedLookup{repo: repo, cache: NewCache[string](), ttl: ttl}
}

func (l *CachedLookup) Exists(ctx context.Context, id domainagent.ID) (bool, error) {
	_, err := l.DisplayName(ctx, id)
	if errors.Is(err, domainagent.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *CachedLookup) DisplayName(ctx context.Context, id domainagent.ID) (string, error) {
	if name, err := l.cache.Get(ctx, string(id)); err == nil {
		return name, nil
	}
	a, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", id, err)
	}
	name := a.DisplayName()
	l.cache.Set(ctx, string(id), name, l.ttl) //nolint:errcheck
	return name, nil
}
