package agent

import (
	"context"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
)

// Repository manages agent profiles in the database.
type Repository interface {
	Create(ctx context.Context, a domainagent.Agent) (domainagent.Agent, error)
	GetByID(ctx context.Context, id domainagent.ID) (domainagent.Agent, error)
	Exists(ctx context.Context, id domainagent.ID) (bool, error)
	List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error)

	UpdateStatus(ctx context.Context, id domainagent.ID, status domainagent.Status) error
}
