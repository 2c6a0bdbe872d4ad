package agent

import (
	"context"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
)

// IdentityLookup is the narrow view the messaging and contact services need.
// [ISP] Callers resolve identities without depending on the full Repository.
type IdentityLookup interface {
	Exists(ctx context.Context, id domainagent.ID) (bool, error)
	DisplayName(ctx context.Context, id domainagent.ID) (string, error)
}

// ExistenceChecker is all the identity issuer needs to detect collisions.
type ExistenceChecker interface {
	Exists(ctx context.Context, id domainagent.ID) (bool, error)
}

// Resolver refuses unknown agents before an entry point sends or delegates.
// The router and coordinator trust their callers to have done this.
type Resolver interface {
	// RequireExisting wraps domainagent.ErrNotFound for the first unknown id.
	RequireExisting(ctx context.Context, ids ...domainagent.ID) error
}
