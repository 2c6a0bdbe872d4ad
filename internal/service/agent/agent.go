package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/event"
	portagent "github.com/alanyang/agentlink/internal/port/agent"
	portbus "github.com/alanyang/agentlink/internal/port/eventbus"
	portlocker "github.com/alanyang/agentlink/internal/port/locker"
)

// Issuer is the identity issuance the service needs.
type Issuer interface {
	Issue(ctx context.Context, kind domainagent.Kind, region string) (domainagent.ID, error)
}

// Service manages agent registration and persisted status.
// It also satisfies port/agent.IdentityLookup.
// [SRP] Profiles only. Live reachability belongs to the presence registry.
type Service struct {
	repo   portagent.Repository
	issuer Issuer
	locker portlocker.AdvisoryLocker
	bus    portbus.EventBus
}

func NewService(repo portagent.Repository, issuer Issuer, locker portlocker.AdvisoryLocker, bus portbus.EventBus) *Service {
	return &Service{repo: repo, issuer: issuer, locker: locker, bus: bus}
}

type RegisterInput struct {
	Nickname string
	Kind     domainagent.Kind
	Platform string
	Region   string
	Bio      string
}

// Register issues an id and stores the profile. Issue and insert run under a
// lock per (kind, region) so concurrent registrations cannot pick the same id.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domainagent.Agent, error) {
	if in.Kind == "" {
		in.Kind = domainagent.KindPersonal
	}
	region, err := domainagent.NormalizeRegion(in.Region)
	if err != nil {
		return domainagent.Agent{}, fmt.Errorf("register agent: %w", err)
	}

	var created domainagent.Agent
	err = s.locker.WithLock(ctx, advisoryKey(in.Kind, region), func(ctx context.Context) error {
		id, err := s.issuer.Issue(ctx, in.Kind, region)
		if err != nil {
			return err
		}
		created, err = s.repo.Create(ctx, domainagent.New(id, in.Kind, in.Nickname, in.Platform, region, in.Bio))
		return err
	})
	if err != nil {
		return domainagent.Agent{}, fmt.Errorf("register agent: %w", err)
	}

	if err := s.bus.Publish(ctx, event.New(event.TypeAgentRegistered, string(created.ID))); err != nil {
		slog.ErrorContext(ctx, "failed to publish AgentRegistered event", "agent_id", created.ID, "error", err)
	}
	return created, nil
}

// IssueID issues an id without registering a profile.
func (s *Service) IssueID(ctx context.Context, kind domainagent.Kind, region string) (domainagent.ID, error) {
	id, err := s.issuer.Issue(ctx, kind, region)
	if err != nil {
		return "", fmt.Errorf("issue id: %w", err)
	}
	return id, nil
}

func (s *Service) GetByID(ctx context.Context, id domainagent.ID) (domainagent.Agent, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domainagent.Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error) {
	agents, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

func (s *Service) Exists(ctx context.Context, id domainagent.ID) (bool, error) {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check agent: %w", err)
	}
	return ok, nil
}

// DisplayName implements port/agent.IdentityLookup.
func (s *Service) DisplayName(ctx context.Context, id domainagent.ID) (string, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve display name: %w", err)
	}
	return a.DisplayName(), nil
}

// RequireExisting returns domainagent.ErrNotFound for the first unknown id.
func (s *Service) RequireExisting(ctx context.Context, ids ...domainagent.ID) error {
	for _, id := range ids {
		ok, err := s.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("agent %s: %w", id, domainagent.ErrNotFound)
		}
	}
	return nil
}

func (s *Service) MarkOnline(ctx context.Context, id domainagent.ID) error {
	if err := s.repo.UpdateStatus(ctx, id, domainagent.StatusOnline); err != nil {
		return fmt.Errorf("mark agent online: %w", err)
	}
	return nil
}

func (s *Service) MarkOffline(ctx context.Context, id domainagent.ID) error {
	if err := s.repo.UpdateStatus(ctx, id, domainagent.StatusOffline); err != nil {
		return fmt.Errorf("mark agent offline: %w", err)
	}
	return nil
}

// advisoryKey hashes (kind, region) to a stable int64 for the locker.
func advisoryKey(kind domainagent.Kind, region string) int64 {
	h := fnv.New64a()
	h.Write([]byte("identity:"))
	h.Write([]byte(kind))
	h.Write([]byte(region))
	return int64(h.Sum64())
}
