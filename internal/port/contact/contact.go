package contact

import (
	"context"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domaincontact "github.com/alanyang/agentlink/internal/domain/contact"
)

// Repository stores directed contact edges keyed by (owner, friend).
type Repository interface {
	Get(ctx context.Context, owner, friend domainagent.ID) (domaincontact.Contact, error)
	Upsert(ctx context.Context, c domaincontact.Contact) error
	Delete(ctx context.Context, owner, friend domainagent.ID) error
	// ListByOwner returns edges owned by owner with the given status.
	ListByOwner(ctx context.Context, owner domainagent.ID, status domaincontact.Status) ([]domaincontact.Contact, error)
	// ListIncoming returns edges pointing at friend with the given status.
	ListIncoming(ctx context.Context, friend domainagent.ID, status domaincontact.Status) ([]domaincontact.Contact, error)
}
