package group

import (
	"context"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
)

// MembershipReader resolves current membership. Never cached by callers.
// [ISP] Fan-out needs only this method.
type MembershipReader interface {
	MembersOf(ctx context.Context, groupID string) ([]domainmessage.Member, error)
}

// Repository stores groups, memberships and group messages.
type Repository interface {
	MembershipReader

	Create(ctx context.Context, g domainmessage.Group) (domainmessage.Group, error)
	GetByID(ctx context.Context, id string) (domainmessage.Group, error)
	ListForAgent(ctx context.Context, agentID domainagent.ID) ([]domainmessage.Group, error)
	AddMember(ctx context.Context, groupID string, m domainmessage.Member) error
	RemoveMember(ctx context.Context, groupID string, agentID domainagent.ID) error

	CreateMessage(ctx context.Context, m domainmessage.GroupMessage) (domainmessage.GroupMessage, error)
	History(ctx context.Context, groupID string, page domainmessage.Page) ([]domainmessage.GroupMessage, error)
}
