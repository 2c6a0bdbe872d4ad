package testutil

import (
	"context"
	"fmt"
	"math/rand/v2"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
)

// RandomAgentID returns a well-formed AX id in a random region, so tests that
// share one database rarely collide.
func RandomAgentID(kind domainagent.Kind) domainagent.ID {
	region := string([]byte{byte('A' + rand.IntN(26)), byte('A' + rand.IntN(26))})
	return domainagent.Format(kind, region, rand.IntN(10000))
}

// KnownAgents implements port/agent.Resolver over a fixed set of ids.
type KnownAgents map[domainagent.ID]bool

func NewKnownAgents(ids ...domainagent.ID) KnownAgents {
	k := KnownAgents{}
	for _, id := range ids {
		k[id] = true
	}
	return k
}

func (k KnownAgents) RequireExisting(_ context.Context, ids ...domainagent.ID) error {
	for _, id := range ids {
		if !k[id] {
			return fmt.Errorf("agent %s: %w", id, domainagent.ErrNotFound)
		}
	}
	return nil
}
