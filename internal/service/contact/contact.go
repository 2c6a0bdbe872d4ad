package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domaincontact "github.com/alanyang/agentlink/internal/domain/contact"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	"github.com/alanyang/agentlink/internal/domain/event"
	portagent "github.com/alanyang/agentlink/internal/port/agent"
	portbus "github.com/alanyang/agentlink/internal/port/eventbus"
	portcontact "github.com/alanyang/agentlink/internal/port/contact"
	portnotifier "github.com/alanyang/agentlink/internal/port/notifier"
)

// Service manages friend requests and friendships.
type Service struct {
	repo     portcontact.Repository
	names    portagent.IdentityLookup
	notifier portnotifier.AgentNotifier
	bus      portbus.EventBus
}

func NewService(repo portcontact.Repository, names portagent.IdentityLookup, notifier portnotifier.AgentNotifier, bus portbus.EventBus) *Service {
	return &Service{repo: repo, names: names, notifier: notifier, bus: bus}
}

// RequestPush is the live frame payload for friend events.
type RequestPush struct {
	From     domainagent.ID   `json:"from_id"`
	FromName string           `json:"from_name"`
	Message  string           `json:"message,omitempty"`
	Packet   *envelope.Packet `json:"packet,omitempty"`
}

// SendRequest records a pending request from → to and notifies the target.
// A previously rejected request may be sent again.
func (s *Service) SendRequest(ctx context.Context, from, to domainagent.ID, message string, packet *envelope.Packet) (domaincontact.Contact, error) {
	if from == to {
		return domaincontact.Contact{}, fmt.Errorf("send friend request: %w", domaincontact.ErrSelf)
	}
	if err := s.requireAgents(ctx, from, to); err != nil {
		return domaincontact.Contact{}, fmt.Errorf("send friend request: %w", err)
	}

	existing, err := s.repo.Get(ctx, from, to)
	switch {
	case err == nil && existing.Status == domaincontact.StatusAccepted:
		return domaincontact.Contact{}, fmt.Errorf("send friend request: %w", domaincontact.ErrAlreadyFriends)
	case err == nil && existing.Status == domaincontact.StatusPending:
		return domaincontact.Contact{}, fmt.Errorf("send friend request: %w", domaincontact.ErrRequestPending)
	case err != nil && !errors.Is(err, domaincontact.ErrNotFound):
		return domaincontact.Contact{}, fmt.Errorf("send friend request: %w", err)
	}

	if packet == nil {
		p := envelope.FriendRequest(string(from), string(to), message)
		packet = &p
	}
	if message == "" {
		message = packet.Content
	}

	c := domaincontact.New(from, to, domaincontact.StatusPending, message)
	if err := s.repo.Upsert(ctx, c); err != nil {
		return domaincontact.Contact{}, fmt.Errorf("send friend request: %w", err)
	}

	s.notifier.NotifyAgent(ctx, to, event.NewPush(event.PushFriendRequest, RequestPush{
		From: from, FromName: s.displayName(ctx, from), Message: message, Packet: packet,
	}))
	s.publish(ctx, from)
	return c, nil
}

// Accept turns requester's pending request to owner into a friendship in both directions.
func (s *Service) Accept(ctx context.Context, owner, requester domainagent.ID) error {
	req, err := s.pendingRequest(ctx, requester, owner)
	if err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}

	req.Status = domaincontact.StatusAccepted
	if err := s.repo.Upsert(ctx, req); err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}
	if err := s.repo.Upsert(ctx, domaincontact.New(owner, requester, domaincontact.StatusAccepted, "")); err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}

	p := envelope.FriendAccept(string(owner), string(requester))
	s.notifier.NotifyAgent(ctx, requester, event.NewPush(event.PushFriendAccepted, RequestPush{
		From: owner, FromName: s.displayName(ctx, owner), Packet: &p,
	}))
	s.publish(ctx, owner)
	return nil
}

func (s *Service) Reject(ctx context.Context, owner, requester domainagent.ID) error {
	req, err := s.pendingRequest(ctx, requester, owner)
	if err != nil {
		return fmt.Errorf("reject friend request: %w", err)
	}
	req.Status = domaincontact.StatusRejected
	if err := s.repo.Upsert(ctx, req); err != nil {
		return fmt.Errorf("reject friend request: %w", err)
	}

	p := envelope.FriendReject(string(owner), string(requester))
	s.notifier.NotifyAgent(ctx, requester, event.NewPush(event.PushFriendRejected, RequestPush{
		From: owner, FromName: s.displayName(ctx, owner), Packet: &p,
	}))
	s.publish(ctx, owner)
	return nil
}

func (s *Service) Friends(ctx context.Context, agentID domainagent.ID) ([]domaincontact.Contact, error) {
	out, err := s.repo.ListByOwner(ctx, agentID, domaincontact.StatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return out, nil
}

// Pending lists requests waiting for agentID to answer.
func (s *Service) Pending(ctx context.Context, agentID domainagent.ID) ([]domaincontact.Contact, error) {
	out, err := s.repo.ListIncoming(ctx, agentID, domaincontact.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return out, nil
}

// Remove deletes the friendship in both directions.
func (s *Service) Remove(ctx context.Context, a, b domainagent.ID) error {
	if err := s.repo.Delete(ctx, a, b); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	if err := s.repo.Delete(ctx, b, a); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	s.publish(ctx, a)
	return nil
}

func (s *Service) pendingRequest(ctx context.Context, from, to domainagent.ID) (domaincontact.Contact, error) {
	req, err := s.repo.Get(ctx, from, to)
	if errors.Is(err, domaincontact.ErrNotFound) {
		return domaincontact.Contact{}, domaincontact.ErrNoRequest
	}
	if err != nil {
		return domaincontact.Contact{}, err
	}
	if req.Status != domaincontact.StatusPending {
		return domaincontact.Contact{}, domaincontact.ErrNoRequest
	}
	return req, nil
}

func (s *Service) requireAgents(ctx context.Context, ids ...domainagent.ID) error {
	for _, id := range ids {
		ok, err := s.names.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("agent %s: %w", id, domainagent.ErrNotFound)
		}
	}
	return nil
}

func (s *Service) displayName(ctx context.Context, id domainagent.ID) string {
	name, err := s.names.DisplayName(ctx, id)
	if err != nil || name == "" {
		return string(id)
	}
	return name
}

func (s *Service) publish(ctx context.Context, id domainagent.ID) {
	if err := s.bus.Publish(ctx, event.New(event.TypeContactUpdated, string(id))); err != nil {
		slog.ErrorContext(ctx, "failed to publish ContactUpdated event", "agent_id", id, "error", err)
	}
}
