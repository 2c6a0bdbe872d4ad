package contact_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domaincontact "github.com/alanyang/agentlink/internal/domain/contact"
	"github.com/alanyang/agentlink/internal/domain/event"
	"github.com/alanyang/agentlink/internal/mocks"
	contactsvc "github.com/alanyang/agentlink/internal/service/contact"
	"github.com/alanyang/agentlink/internal/testutil"
)

const (
	alice domainagent.ID = "AX-U-CN-0001"
	bob   domainagent.ID = "AX-U-CN-0002"
)

type contactDeps struct {
	repo     *mocks.MockContactRepository
	names    *mocks.MockIdentityLookup
	notifier *testutil.CaptureNotifier
}

func newContactSvc(t *testing.T) (*contactsvc.Service, contactDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	d := contactDeps{
		repo:     mocks.NewMockContactRepository(ctrl),
		names:    mocks.NewMockIdentityLookup(ctrl),
		notifier: &testutil.CaptureNotifier{Online: map[domainagent.ID]bool{alice: true, bob: true}},
	}
	bus := mocks.NewMockEventBus(ctrl)
	bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	d.names.EXPECT().DisplayName(gomock.Any(), gomock.Any()).Return("someone", nil).AnyTimes()
	return contactsvc.NewService(d.repo, d.names, d.notifier, bus), d
}

func TestSendRequest(t *testing.T) {
	tests := []struct {
		name     string
		from, to domainagent.ID
		setup    func(d contactDeps)
		wantErr  error
	}{
		{
			name: "self",
			from: alice, to: alice,
			setup:   func(d contactDeps) {},
			wantErr: domaincontact.ErrSelf,
		},
		{
			name: "unknown target",
			from: alice, to: bob,
			setup: func(d contactDeps) {
				d.names.EXPECT().Exists(gomock.Any(), alice).Return(true, nil)
				d.names.EXPECT().Exists(gomock.Any(), bob).Return(false, nil)
			},
			wantErr: domainagent.ErrNotFound,
		},
		{
			name: "already friends",
			from: alice, to: bob,
			setup: func(d contactDeps) {
				d.names.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
				d.repo.EXPECT().Get(gomock.Any(), alice, bob).Return(domaincontact.Contact{Status: domaincontact.StatusAccepted}, nil)
			},
			wantErr: domaincontact.ErrAlreadyFriends,
		},
		{
			name: "duplicate pending",
			from: alice, to: bob,
			setup: func(d contactDeps) {
				d.names.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
				d.repo.EXPECT().Get(gomock.Any(), alice, bob).Return(domaincontact.Contact{Status: domaincontact.StatusPending}, nil)
			},
			wantErr: domaincontact.ErrRequestPending,
		},
		{
			name: "new request",
			from: alice, to: bob,
			setup: func(d contactDeps) {
				d.names.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
				d.repo.EXPECT().Get(gomock.Any(), alice, bob).Return(domaincontact.Contact{}, domaincontact.ErrNotFound)
				d.repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name: "resend after rejection",
			from: alice, to: bob,
			setup: func(d contactDeps) {
				d.names.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
				d.repo.EXPECT().Get(gomock.Any(), alice, bob).Return(domaincontact.Contact{Status: domaincontact.StatusRejected}, nil)
				d.repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newContactSvc(t)
			tt.setup(d)

			c, err := svc.SendRequest(context.Background(), tt.from, tt.to, "", nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, d.notifier.Calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domaincontact.StatusPending, c.Status)
			assert.Equal(t, "request to add friend", c.Message)

			calls := d.notifier.AgentNotifications(bob)
			require.Len(t, calls, 1)
			push := calls[0].Event.(event.Push)
			assert.Equal(t, event.PushFriendRequest, push.Event)
			assert.Equal(t, alice, push.Data.(contactsvc.RequestPush).From)
		})
	}
}

func TestAcceptCreatesBothDirections(t *testing.T) {
	svc, d := newContactSvc(t)
	d.repo.EXPECT().Get(gomock.Any(), alice, bob).Return(domaincontact.New(alice, bob, domaincontact.StatusPending, "hi"), nil)

	var saved []domaincontact.Contact
	d.repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c domaincontact.Contact) error {
		saved = append(saved, c)
		return nil
	}).Times(2)

	require.NoError(t, svc.Accept(context.Background(), bob, alice))
	require.Len(t, saved, 2)
	assert.Equal(t, alice, saved[0].OwnerID)
	assert.Equal(t, domaincontact.StatusAccepted, saved[0].Status)
	assert.Equal(t, bob, saved[1].OwnerID)
	assert.Equal(t, domaincontact.StatusAccepted, saved[1].Status)

	calls := d.notifier.AgentNotifications(alice)
	require.Len(t, calls, 1)
	assert.Equal(t, event.PushFriendAccepted, calls[0].Event.(event.Push).Event)
}

func TestAcceptWithoutRequest(t *testing.T) {
	svc, d := newContactSvc(t)
	d.repo.EXPECT().Get(gomock.Any(), alice, bob).Return(domaincontact.Contact{}, domaincontact.ErrNotFound)

	err := svc.Accept(context.Background(), bob, alice)
	assert.ErrorIs(t, err, domaincontact.ErrNoRequest)
}

func TestReject(t *testing.T) {
	svc, d := newContactSvc(t)
	d.repo.EXPECT().Get(gomock.Any(), alice, bob).Return(domaincontact.New(alice, bob, domaincontact.StatusPending, ""), nil)
	d.repo.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c domaincontact.Contact) error {
		assert.Equal(t, domaincontact.StatusRejected, c.Status)
		return nil
	})

	require.NoError(t, svc.Reject(context.Background(), bob, alice))
}

func TestRemoveDeletesBothDirections(t *testing.T) {
	svc, d := newContactSvc(t)
	d.repo.EXPECT().Delete(gomock.Any(), alice, bob).Return(nil)
	d.repo.EXPECT().Delete(gomock.Any(), bob, alice).Return(nil)

	require.NoError(t, svc.Remove(context.Background(), alice, bob))
}
