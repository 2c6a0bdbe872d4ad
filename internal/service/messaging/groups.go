package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
)

// CreateGroup stores a group with the owner and the given members.
// Every referenced agent must exist.
func (r *Router) CreateGroup(ctx context.Context, name string, owner domainagent.ID, members []domainagent.ID) (domainmessage.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domainmessage.Group{}, fmt.Errorf("create group: %w", domainmessage.ErrNameRequired)
	}
	if err := r.requireAgents(ctx, append([]domainagent.ID{owner}, members...)...); err != nil {
		return domainmessage.Group{}, fmt.Errorf("create group: %w", err)
	}

	g, err := r.groups.Create(ctx, domainmessage.NewGroup(name, owner, members))
	if err != nil {
		return domainmessage.Group{}, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

func (r *Router) GetGroup(ctx context.Context, id string) (domainmessage.Group, error) {
	g, err := r.groups.GetByID(ctx, id)
	if err != nil {
		return domainmessage.Group{}, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (r *Router) ListGroups(ctx context.Context, agentID domainagent.ID) ([]domainmessage.Group, error) {
	groups, err := r.groups.ListForAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (r *Router) AddMember(ctx context.Context, groupID string, agentID domainagent.ID) error {
	if err := r.requireAgents(ctx, agentID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if _, err := r.groups.GetByID(ctx, groupID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	m := domainmessage.Member{AgentID: agentID, Role: domainmessage.RoleMember, JoinedAt: time.Now().UTC()}
	if err := r.groups.AddMember(ctx, groupID, m); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember takes an agent out of a group. The owner cannot be removed.
func (r *Router) RemoveMember(ctx context.Context, groupID string, agentID domainagent.ID) error {
	g, err := r.groups.GetByID(ctx, groupID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if g.OwnerID == agentID {
		return fmt.Errorf("remove member: %w", domainmessage.ErrOwnerLeave)
	}
	if err := r.groups.RemoveMember(ctx, groupID, agentID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (r *Router) requireAgents(ctx context.Context, ids ...domainagent.ID) error {
	for _, id := range ids {
		ok, err := r.names.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("agent %s: %w", id, domainagent.ErrNotFound)
		}
	}
	return nil
}
