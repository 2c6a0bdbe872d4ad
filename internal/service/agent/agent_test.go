package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/event"
	"github.com/alanyang/agentlink/internal/mocks"
	agentsvc "github.com/alanyang/agentlink/internal/service/agent"
	"github.com/alanyang/agentlink/internal/service/identity"
)

// ── helpers ───────────────────────────────────────────────────────────────────

type agentDeps struct {
	repo   *mocks.MockAgentRepository
	locker *mocks.MockAdvisoryLocker
	bus    *mocks.MockEventBus
}

func newAgentSvc(t *testing.T, gen identity.Generator) (*agentsvc.Service, agentDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	d := agentDeps{
		repo:   mocks.NewMockAgentRepository(ctrl),
		locker: mocks.NewMockAdvisoryLocker(ctrl),
		bus:    mocks.NewMockEventBus(ctrl),
	}
	opts := []identity.Option{}
	if gen != nil {
		opts = append(opts, identity.WithGenerator(gen))
	}
	svc := agentsvc.NewService(d.repo, identity.NewIssuer(d.repo, opts...), d.locker, d.bus)
	return svc, d
}

// runLocked makes the mock locker execute fn inline.
func runLocked(l *mocks.MockAdvisoryLocker) {
	l.EXPECT().WithLock(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ int64, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

func matchEventType(et event.Type) gomock.Matcher {
	return eventTypeMatcher{et}
}

type eventTypeMatcher struct{ want event.Type }

func (m eventTypeMatcher) Matches(x interface{}) bool {
	e, ok := x.(event.Event)
	return ok && e.Type == m.want
}
func (m eventTypeMatcher) String() string { return "event.Type=" + string(m.want) }

func fixed(id domainagent.ID) identity.Generator {
	return func(domainagent.Kind, string) domainagent.ID { return id }
}

// ── Register ──────────────────────────────────────────────────────────────────

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		in      agentsvc.RegisterInput
		setup   func(d agentDeps)
		wantID  domainagent.ID
		wantErr error
		wantMsg string
	}{
		{
			name: "success stores offline profile with default region",
			in:   agentsvc.RegisterInput{Nickname: "Lobster", Kind: domainagent.KindSkill},
			setup: func(d agentDeps) {
				runLocked(d.locker)
				d.repo.EXPECT().Exists(gomock.Any(), domainagent.ID("AX-S-CN-0042")).Return(false, nil)
				d.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, a domainagent.Agent) (domainagent.Agent, error) {
					return a, nil
				})
				d.bus.EXPECT().Publish(gomock.Any(), matchEventType(event.TypeAgentRegistered)).Return(nil)
			},
			wantID: "AX-S-CN-0042",
		},
		{
			name: "publish failure is not fatal",
			in:   agentsvc.RegisterInput{Nickname: "Lobster", Kind: domainagent.KindSkill, Region: "cn"},
			setup: func(d agentDeps) {
				runLocked(d.locker)
				d.repo.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)
				d.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, a domainagent.Agent) (domainagent.Agent, error) {
					return a, nil
				})
				d.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("bus down"))
			},
			wantID: "AX-S-CN-0042",
		},
		{
			name:    "invalid region rejected before locking",
			in:      agentsvc.RegisterInput{Region: "CHINA"},
			setup:   func(d agentDeps) {},
			wantErr: domainagent.ErrInvalidRegion,
		},
		{
			name: "repo error",
			in:   agentsvc.RegisterInput{Kind: domainagent.KindSkill},
			setup: func(d agentDeps) {
				runLocked(d.locker)
				d.repo.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)
				d.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(domainagent.Agent{}, errors.New("db error"))
			},
			wantMsg: "register agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newAgentSvc(t, fixed("AX-S-CN-0042"))
			tt.setup(d)

			got, err := svc.Register(context.Background(), tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			if tt.wantMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
			assert.Equal(t, "CN", got.Region)
			assert.Equal(t, domainagent.StatusOffline, got.Status)
		})
	}
}

// ── Lookup ────────────────────────────────────────────────────────────────────

func TestDisplayName(t *testing.T) {
	svc, d := newAgentSvc(t, nil)
	d.repo.EXPECT().GetByID(gomock.Any(), domainagent.ID("AX-U-CN-0001")).
		Return(domainagent.Agent{ID: "AX-U-CN-0001", Nickname: "Ada"}, nil)
	d.repo.EXPECT().GetByID(gomock.Any(), domainagent.ID("AX-U-CN-0002")).
		Return(domainagent.Agent{ID: "AX-U-CN-0002"}, nil)

	name, err := svc.DisplayName(context.Background(), "AX-U-CN-0001")
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)

	name, err = svc.DisplayName(context.Background(), "AX-U-CN-0002")
	require.NoError(t, err)
	assert.Equal(t, "AX-U-CN-0002", name)
}

func TestRequireExisting(t *testing.T) {
	svc, d := newAgentSvc(t, nil)
	d.repo.EXPECT().Exists(gomock.Any(), domainagent.ID("AX-U-CN-0001")).Return(true, nil)
	d.repo.EXPECT().Exists(gomock.Any(), domainagent.ID("AX-U-CN-0002")).Return(false, nil)

	err := svc.RequireExisting(context.Background(), "AX-U-CN-0001", "AX-U-CN-0002")
	assert.ErrorIs(t, err, domainagent.ErrNotFound)
	assert.Contains(t, err.Error(), "AX-U-CN-0002")
}

func TestMarkStatus(t *testing.T) {
	svc, d := newAgentSvc(t, nil)
	d.repo.EXPECT().UpdateStatus(gomock.Any(), domainagent.ID("AX-U-CN-0001"), domainagent.StatusOnline).Return(nil)
	d.repo.EXPECT().UpdateStatus(gomock.Any(), domainagent.ID("AX-U-CN-0001"), domainagent.StatusOffline).Return(errors.New("db error"))

	require.NoError(t, svc.MarkOnline(context.Background(), "AX-U-CN-0001"))
	err := svc.MarkOffline(context.Background(), "AX-U-CN-0001")
	assert.ErrorContains(t, err, "mark agent offline")
}
