package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcpmcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alanyang/agentlink/internal/adapter/memory"
	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	"github.com/alanyang/agentlink/internal/domain/event"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
	domaintask "github.com/alanyang/agentlink/internal/domain/task"
	"github.com/alanyang/agentlink/internal/mocks"
	agentsvc "github.com/alanyang/agentlink/internal/service/agent"
	"github.com/alanyang/agentlink/internal/service/identity"
	"github.com/alanyang/agentlink/internal/service/messaging"
	"github.com/alanyang/agentlink/internal/service/presence"
	tasksvc "github.com/alanyang/agentlink/internal/service/task"
	"github.com/alanyang/agentlink/internal/testutil"
)

// ── helpers ───────────────────────────────────────────────────────────────────

const (
	alice domainagent.ID = "AX-U-CN-1111"
	bob   domainagent.ID = "AX-U-CN-2222"
	ghost domainagent.ID = "AX-U-CN-9999"
)

// known resolves alice and bob; ghost was never issued.
var known = testutil.NewKnownAgents(alice, bob)

type toolsDeps struct {
	agentRepo *mocks.MockAgentRepository
	msgRepo   *mocks.MockMessageRepository
	taskRepo  *mocks.MockTaskRepository
	names     *mocks.MockIdentityLookup
	notifier  *testutil.CaptureNotifier
}

func newToolsDeps(t *testing.T) (Services, toolsDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	d := toolsDeps{
		agentRepo: mocks.NewMockAgentRepository(ctrl),
		msgRepo:   mocks.NewMockMessageRepository(ctrl),
		taskRepo:  mocks.NewMockTaskRepository(ctrl),
		names:     mocks.NewMockIdentityLookup(ctrl),
		notifier:  &testutil.CaptureNotifier{Online: map[domainagent.ID]bool{bob: true}},
	}
	bus := mocks.NewMockEventBus(ctrl)
	bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	issuer := identity.NewIssuer(d.agentRepo, identity.WithGenerator(func(domainagent.Kind, string) domainagent.ID { return alice }))
	svc := Services{
		Agents: agentsvc.NewService(d.agentRepo, issuer, memory.NewLocker(), bus),
		Router: messaging.NewRouter(d.msgRepo, mocks.NewMockGroupRepository(ctrl), d.names, d.notifier, bus, nil),
		Tasks:  tasksvc.NewCoordinator(d.taskRepo, d.notifier, bus, nil),
	}
	return svc, d
}

func makeReq(args map[string]any) mcpmcp.CallToolRequest {
	var req mcpmcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(r *mcpmcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	b, _ := json.Marshal(r.Content[0])
	var m map[string]interface{}
	json.Unmarshal(b, &m) //nolint:errcheck
	if t, ok := m["text"].(string); ok {
		return t
	}
	return ""
}

func storedTask(status domaintask.Status) domaintask.Task {
	t := domaintask.New(alice, bob, "translate", "", nil, domaintask.PriorityNormal, nil)
	t.ID = "task_abcd1234"
	t.Status = status
	return t
}

// ── registerAgentHandler ──────────────────────────────────────────────────────

func TestRegisterAgentHandler(t *testing.T) {
	tests := []struct {
		name         string
		args         map[string]any
		setup        func(d toolsDeps)
		wantContains string
	}{
		{
			name: "issues id and stores profile",
			args: map[string]any{"nickname": "Ada", "region": "cn"},
			setup: func(d toolsDeps) {
				d.agentRepo.EXPECT().Exists(gomock.Any(), alice).Return(false, nil)
				d.agentRepo.EXPECT().Create(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, a domainagent.Agent) (domainagent.Agent, error) {
						assert.Equal(t, "CN", a.Region)
						assert.Equal(t, "mcp", a.Platform)
						return a, nil
					})
			},
			wantContains: string(alice),
		},
		{
			name:         "nickname required",
			args:         map[string]any{},
			setup:        func(toolsDeps) {},
			wantContains: "error: nickname required",
		},
		{
			name:         "unknown type",
			args:         map[string]any{"nickname": "Ada", "type": "robot"},
			setup:        func(toolsDeps) {},
			wantContains: "error: type must be personal or skill",
		},
		{
			name:         "bad region",
			args:         map[string]any{"nickname": "Ada", "region": "CHN"},
			setup:        func(toolsDeps) {},
			wantContains: "error:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newToolsDeps(t)
			tt.setup(d)

			result, err := registerAgentHandler(svc.Agents)(context.Background(), makeReq(tt.args))
			require.NoError(t, err)
			assert.Contains(t, resultText(result), tt.wantContains)
		})
	}
}

// ── goOnlineHandler ───────────────────────────────────────────────────────────

func TestGoOnlineHandler_RequiresSession(t *testing.T) {
	svc, _ := newToolsDeps(t)
	reg := NewSessionRegistry(presence.NewRegistry(nil, nil))

	result, err := goOnlineHandler(reg, svc.Agents)(context.Background(), makeReq(map[string]any{"ax_id": string(alice)}))
	require.NoError(t, err)
	assert.Contains(t, resultText(result), "requires a streaming session")
}

func TestGoOnlineHandler_MalformedID(t *testing.T) {
	svc, _ := newToolsDeps(t)
	reg := NewSessionRegistry(presence.NewRegistry(nil, nil))

	result, err := goOnlineHandler(reg, svc.Agents)(context.Background(), makeReq(map[string]any{"ax_id": "alice"}))
	require.NoError(t, err)
	assert.Equal(t, "error: invalid ax_id", resultText(result))
}

// ── messaging tools ───────────────────────────────────────────────────────────

func TestSendMessageHandler(t *testing.T) {
	svc, d := newToolsDeps(t)
	d.msgRepo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m domainmessage.Message) (domainmessage.Message, error) { return m, nil })

	result, err := sendMessageHandler(known, svc.Router)(context.Background(), makeReq(map[string]any{
		"from_id": string(alice), "to_id": string(bob), "content": "hello",
	}))
	require.NoError(t, err)

	var got messaging.Delivery
	require.NoError(t, json.Unmarshal([]byte(resultText(result)), &got))
	assert.True(t, got.Delivered)
	assert.Equal(t, "hello", got.Message.Content)

	calls := d.notifier.AgentNotifications(bob)
	require.Len(t, calls, 1)
	assert.Equal(t, event.PushChatMessage, calls[0].Event.(event.Push).Event)
}

func TestSendMessageHandler_Validation(t *testing.T) {
	tests := []struct {
		name         string
		args         map[string]any
		wantContains string
	}{
		{"bad sender", map[string]any{"from_id": "x", "to_id": string(bob), "content": "hi"}, "error: invalid from_id"},
		{"bad recipient", map[string]any{"from_id": string(alice), "to_id": "", "content": "hi"}, "error: invalid to_id"},
		{"blank content", map[string]any{"from_id": string(alice), "to_id": string(bob), "content": "  "}, "error:"},
		{"unknown recipient", map[string]any{"from_id": string(alice), "to_id": string(ghost), "content": "hi"}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newToolsDeps(t)
			result, err := sendMessageHandler(known, svc.Router)(context.Background(), makeReq(tt.args))
			require.NoError(t, err)
			assert.Contains(t, resultText(result), tt.wantContains)
			assert.Empty(t, d.notifier.Calls)
		})
	}
}

func TestChatHistoryHandler_DefaultPage(t *testing.T) {
	svc, d := newToolsDeps(t)
	d.msgRepo.EXPECT().History(gomock.Any(), alice, bob, domainmessage.Page{Limit: 50}).Return(nil, nil)

	result, err := chatHistoryHandler(svc.Router)(context.Background(), makeReq(map[string]any{"a": string(alice), "b": string(bob)}))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(result))
}

// ── task tools ────────────────────────────────────────────────────────────────

func TestDelegateTaskHandler(t *testing.T) {
	svc, d := newToolsDeps(t)
	d.taskRepo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tk domaintask.Task) (domaintask.Task, error) {
			assert.Equal(t, domaintask.PriorityHigh, tk.Priority)
			assert.Equal(t, "hi", tk.Input["text"])
			return tk, nil
		})

	result, err := delegateTaskHandler(known, svc.Tasks)(context.Background(), makeReq(map[string]any{
		"from_id": string(alice), "to_id": string(bob), "title": "translate",
		"priority": "high", "input_data": map[string]any{"text": "hi"},
	}))
	require.NoError(t, err)

	var got domaintask.Task
	require.NoError(t, json.Unmarshal([]byte(resultText(result)), &got))
	assert.Equal(t, domaintask.StatusPending, got.Status)
	assert.Len(t, d.notifier.AgentNotifications(bob), 1)
}

func TestDelegateTaskHandler_UnknownRecipient(t *testing.T) {
	svc, d := newToolsDeps(t)

	result, err := delegateTaskHandler(known, svc.Tasks)(context.Background(), makeReq(map[string]any{
		"from_id": string(alice), "to_id": string(ghost), "title": "translate",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(result), "not found")
	assert.Empty(t, d.notifier.Calls)
}

func TestTaskLifecycleHandlers(t *testing.T) {
	tests := []struct {
		name       string
		handler    func(*tasksvc.Coordinator) mcpserver.ToolHandlerFunc
		from, to   domaintask.Status
		args       map[string]any
		wantStatus domaintask.Status
	}{
		{
			name:       "accept",
			handler:    acceptTaskHandler,
			from:       domaintask.StatusPending,
			to:         domaintask.StatusInProgress,
			wantStatus: domaintask.StatusInProgress,
		},
		{
			name:       "complete",
			handler:    completeTaskHandler,
			from:       domaintask.StatusInProgress,
			to:         domaintask.StatusCompleted,
			args:       map[string]any{"output_data": map[string]any{"text": "done"}},
			wantStatus: domaintask.StatusCompleted,
		},
		{
			name:       "reject",
			handler:    rejectTaskHandler,
			from:       domaintask.StatusPending,
			to:         domaintask.StatusRejected,
			args:       map[string]any{"reason": "busy"},
			wantStatus: domaintask.StatusRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newToolsDeps(t)
			d.taskRepo.EXPECT().GetByID(gomock.Any(), "task_abcd1234").Return(storedTask(tt.from), nil)
			d.taskRepo.EXPECT().UpdateStatus(gomock.Any(), "task_abcd1234", tt.from, tt.to, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ string, _, to domaintask.Status, out map[string]any) (domaintask.Task, error) {
					tk := storedTask(to)
					tk.Output = out
					return tk, nil
				})

			args := map[string]any{"task_id": "task_abcd1234"}
			for k, v := range tt.args {
				args[k] = v
			}
			result, err := tt.handler(svc.Tasks)(context.Background(), makeReq(args))
			require.NoError(t, err)

			var got domaintask.Task
			require.NoError(t, json.Unmarshal([]byte(resultText(result)), &got), resultText(result))
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Len(t, d.notifier.AgentNotifications(alice), 1, "delegator hears about it")
		})
	}
}

func TestCompleteTaskHandler_FromPendingRefused(t *testing.T) {
	svc, d := newToolsDeps(t)
	d.taskRepo.EXPECT().GetByID(gomock.Any(), "task_abcd1234").Return(storedTask(domaintask.StatusPending), nil)

	result, err := completeTaskHandler(svc.Tasks)(context.Background(), makeReq(map[string]any{"task_id": "task_abcd1234"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(result), "error:")
	assert.Empty(t, d.notifier.Calls)
}

func TestGetTaskHandler_NotFound(t *testing.T) {
	svc, d := newToolsDeps(t)
	d.taskRepo.EXPECT().GetByID(gomock.Any(), "task_missing").Return(domaintask.Task{}, domaintask.ErrNotFound)

	result, err := getTaskHandler(svc.Tasks)(context.Background(), makeReq(map[string]any{"task_id": "task_missing"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(result), "error:")
}

// ── validateEnvelopeHandler ───────────────────────────────────────────────────

func TestValidateEnvelopeHandler(t *testing.T) {
	good, err := json.Marshal(envelope.ChatMessage(string(alice), string(bob), "hi", envelope.ContentText))
	require.NoError(t, err)

	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantIn    string
	}{
		{"valid chat", string(good), true, ""},
		{"wrong version", `{"protocolVersion":"2.0","type":"chat_message","from":"a","to":"b"}`, false, "unsupported protocol version"},
		{"missing type", `{"protocolVersion":"1.0","from":"a","to":"b"}`, false, "missing required field: type"},
		{"not json", `nope`, false, "invalid envelope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := validateEnvelopeHandler()(context.Background(), makeReq(map[string]any{"envelope": tt.input}))
			require.NoError(t, err)

			var got envelope.Result
			require.NoError(t, json.Unmarshal([]byte(resultText(result)), &got))
			assert.Equal(t, tt.wantValid, got.Valid)
			assert.Contains(t, got.Reason, tt.wantIn)
		})
	}
}
