package federation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	"github.com/alanyang/agentlink/internal/domain/event"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
	"github.com/alanyang/agentlink/internal/mocks"
	contactsvc "github.com/alanyang/agentlink/internal/service/contact"
	fedsvc "github.com/alanyang/agentlink/internal/service/federation"
	"github.com/alanyang/agentlink/internal/service/messaging"
	tasksvc "github.com/alanyang/agentlink/internal/service/task"
	"github.com/alanyang/agentlink/internal/testutil"
	"github.com/alanyang/agentlink/internal/transport/auth"
	transportfed "github.com/alanyang/agentlink/internal/transport/federation"
)

func init() { gin.SetMode(gin.TestMode) }

const (
	alice domainagent.ID = "AX-U-CN-1111"
	bob   domainagent.ID = "AX-U-CN-2222"
)

type deps struct {
	messages *mocks.MockMessageRepository
	notifier *testutil.CaptureNotifier
}

func newRouter(t *testing.T, signer *auth.Signer) (*gin.Engine, deps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	d := deps{
		messages: mocks.NewMockMessageRepository(ctrl),
		notifier: &testutil.CaptureNotifier{Online: map[domainagent.ID]bool{bob: true}},
	}
	bus := mocks.NewMockEventBus(ctrl)
	bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	names := mocks.NewMockIdentityLookup(ctrl)

	router := messaging.NewRouter(d.messages, mocks.NewMockGroupRepository(ctrl), names, d.notifier, bus, nil)
	contacts := contactsvc.NewService(mocks.NewMockContactRepository(ctrl), names, d.notifier, bus)
	tasks := tasksvc.NewCoordinator(mocks.NewMockTaskRepository(ctrl), d.notifier, bus, nil)
	gw := fedsvc.NewGateway(router, contacts, tasks, testutil.NewKnownAgents(alice, bob), nil)

	r := gin.New()
	transportfed.Register(r.Group("/federation"), gw, signer.Middleware())
	return r, d
}

func post(r http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(body) //nolint:errcheck
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProtocol(t *testing.T) {
	r, _ := newRouter(t, auth.NewSigner("", "", 0))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/federation/protocol", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got envelope.Protocol
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, envelope.Version, got.Version)
	assert.Len(t, got.Types, len(envelope.Types))
}

func TestValidate(t *testing.T) {
	r, _ := newRouter(t, auth.NewSigner("", "", 0))

	good := envelope.ChatMessage(string(alice), string(bob), "hi", envelope.ContentText)
	w := post(r, "/federation/validate", good, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":true}`, w.Body.String())

	bad := good
	bad.ProtocolVersion = "2.0"
	w = post(r, "/federation/validate", bad, "")
	assert.Equal(t, http.StatusOK, w.Code)
	var res envelope.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "unsupported protocol version")
}

func TestInbound_ChatRoutesAndAcks(t *testing.T) {
	signer := auth.NewSigner("secret", "agentlink", time.Hour)
	token, err := signer.Issue("openclaw")
	require.NoError(t, err)

	r, d := newRouter(t, signer)
	d.messages.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m domainmessage.Message) (domainmessage.Message, error) { return m, nil })

	p := envelope.ChatMessage(string(alice), string(bob), "hello", envelope.ContentText)
	w := post(r, "/federation/inbound", p, token)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var res fedsvc.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, p.ID, res.PacketID)
	assert.Equal(t, envelope.TypeAck, res.Ack.Type)

	calls := d.notifier.AgentNotifications(bob)
	require.Len(t, calls, 1)
	assert.Equal(t, event.PushChatMessage, calls[0].Event.(event.Push).Event)
}

func TestInbound_Refusals(t *testing.T) {
	signer := auth.NewSigner("secret", "agentlink", time.Hour)
	token, err := signer.Issue("openclaw")
	require.NoError(t, err)

	missingTo := envelope.ChatMessage(string(alice), "", "hello", envelope.ContentText)
	unknownType := envelope.ChatMessage(string(alice), string(bob), "hello", envelope.ContentText)
	unknownType.Type = "teleport"

	tests := []struct {
		name       string
		body       any
		token      string
		wantStatus int
	}{
		{"no token", envelope.ChatMessage(string(alice), string(bob), "x", ""), "", http.StatusUnauthorized},
		{"missing field", missingTo, token, http.StatusBadRequest},
		{"unknown type", unknownType, token, http.StatusBadRequest},
		{"not an envelope", "just a string", token, http.StatusBadRequest},
		{"unknown recipient", envelope.ChatMessage(string(alice), "AX-U-CN-9999", "x", ""), token, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, d := newRouter(t, signer)
			w := post(r, "/federation/inbound", tt.body, tt.token)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Empty(t, d.notifier.Calls)
		})
	}
}
