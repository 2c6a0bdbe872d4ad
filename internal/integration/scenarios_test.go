package integration_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	"github.com/alanyang/agentlink/internal/domain/event"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
	domaintask "github.com/alanyang/agentlink/internal/domain/task"
)

// Each scenario drives a running server through its public surfaces only,
// so the same body runs against every storage driver.

type scenario struct {
	name string
	run  func(t *testing.T, s *server)
}

var scenarios = []scenario{
	{"offline delivery then history", offlineDeliveryThenHistory},
	{"rest task completed over realtime", restTaskCompletedOverRealtime},
	{"realtime task completed over rest", realtimeTaskCompletedOverRest},
	{"group fan-out", groupFanOut},
	{"federation inbound chat", federationInboundChat},
	{"presence status persisted", presenceStatusPersisted},
	{"unregistered agents refused", unregisteredAgentsRefused},
}

func offlineDeliveryThenHistory(t *testing.T, s *server) {
	alice := s.register("alice")
	bob := s.register("bob")
	s.online(alice)

	var d struct {
		Message   domainmessage.Message `json:"message"`
		Delivered bool                  `json:"delivered"`
	}
	code := s.do(http.MethodPost, "/api/messages/", map[string]any{
		"from_id": alice, "to_id": bob, "content": "hello",
	}, &d)
	require.Equal(t, http.StatusCreated, code)
	assert.False(t, d.Delivered)

	s.online(bob)

	var hist []domainmessage.Message
	code = s.do(http.MethodGet, "/api/messages/history?a="+string(bob)+"&b="+string(alice), nil, &hist)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, hist, 1)
	assert.Equal(t, "hello", hist[0].Content)
	assert.Equal(t, alice, hist[0].FromID)

	var unread []domainmessage.UnreadCount
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/messages/unread?ax_id="+string(bob), nil, &unread))
	require.Len(t, unread, 1)
}

func restTaskCompletedOverRealtime(t *testing.T, s *server) {
	alice := s.register("alice")
	bob := s.register("bob")
	ac := s.online(alice)
	bc := s.online(bob)

	var task domaintask.Task
	code := s.do(http.MethodPost, "/api/tasks/", map[string]any{
		"from_id": alice, "to_id": bob, "title": "translate", "input_data": map[string]any{"text": "hi"},
	}, &task)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, domaintask.StatusPending, task.Status)

	var offered domaintask.Task
	bc.expect(event.PushTaskReceived, &offered)
	assert.Equal(t, task.ID, offered.ID)

	bc.send("task_accept", map[string]any{"taskId": task.ID})
	var updated domaintask.Task
	ac.expect(event.PushTaskUpdated, &updated)
	assert.Equal(t, domaintask.StatusInProgress, updated.Status)

	bc.send("task_result", map[string]any{"taskId": task.ID, "outputData": map[string]any{"text": "ni hao"}})
	var result domaintask.Task
	ac.expect(event.PushTaskResult, &result)
	assert.Equal(t, domaintask.StatusCompleted, result.Status)
	assert.Equal(t, "ni hao", result.Output["text"])

	var stored domaintask.Task
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/tasks/"+task.ID, nil, &stored))
	assert.Equal(t, domaintask.StatusCompleted, stored.Status)

	// Terminal: the REST path sees the same state machine.
	code = s.do(http.MethodPost, "/api/tasks/"+task.ID+"/reject", map[string]string{"reason": "late"}, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func realtimeTaskCompletedOverRest(t *testing.T, s *server) {
	alice := s.register("alice")
	bob := s.register("bob")
	ac := s.online(alice)
	bc := s.online(bob)

	ac.send("task_delegate", map[string]any{"to": bob, "title": "summarize", "priority": "high"})
	var sent domaintask.Task
	ac.expect(event.PushTaskSent, &sent)
	assert.Equal(t, domaintask.PriorityHigh, sent.Priority)
	bc.expect(event.PushTaskReceived)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/tasks/"+sent.ID+"/accept", nil, nil))
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/tasks/"+sent.ID+"/complete",
		map[string]any{"output_data": map[string]any{"summary": "short"}}, nil))

	var result domaintask.Task
	ac.expect(event.PushTaskResult, &result)
	assert.Equal(t, sent.ID, result.ID)
	assert.Equal(t, domaintask.StatusCompleted, result.Status)

	var received []domaintask.Task
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/tasks/?ax_id="+string(bob)+"&role=received", nil, &received))
	require.Len(t, received, 1)
	assert.Equal(t, sent.ID, received[0].ID)
}

func groupFanOut(t *testing.T, s *server) {
	alice := s.register("alice")
	bob := s.register("bob")
	carol := s.register("carol")
	dave := s.register("dave")
	bc := s.online(bob)

	var g domainmessage.Group
	code := s.do(http.MethodPost, "/api/groups/", map[string]any{
		"name": "team", "owner_id": alice, "members": []domainagent.ID{bob, carol},
	}, &g)
	require.Equal(t, http.StatusCreated, code)
	require.Len(t, g.Members, 3)

	var d struct {
		Live int `json:"live"`
	}
	code = s.do(http.MethodPost, "/api/groups/"+g.ID+"/messages", map[string]any{"from_id": alice, "content": "standup"}, &d)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 1, d.Live)

	var pushed domainmessage.GroupMessage
	bc.expect(event.PushGroupMessage, &pushed)
	assert.Equal(t, "standup", pushed.Content)
	assert.Equal(t, g.ID, pushed.GroupID)

	code = s.do(http.MethodPost, "/api/groups/"+g.ID+"/messages", map[string]any{"from_id": dave, "content": "hi"}, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var hist []domainmessage.GroupMessage
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/groups/"+g.ID+"/messages", nil, &hist))
	require.Len(t, hist, 1)
	assert.Equal(t, alice, hist[0].FromID)
}

func federationInboundChat(t *testing.T, s *server) {
	alice := s.register("alice")
	bob := s.register("bob")
	bc := s.online(bob)

	p := envelope.ChatMessage(string(alice), string(bob), "from afar", envelope.ContentText)
	var res struct {
		Ack envelope.Packet `json:"ack"`
	}
	code := s.do(http.MethodPost, "/api/federation/inbound", p, &res)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, envelope.TypeAck, res.Ack.Type)

	var msg domainmessage.Message
	bc.expect(event.PushChatMessage, &msg)
	assert.Equal(t, "from afar", msg.Content)
	assert.Equal(t, alice, msg.FromID)

	bad := p
	bad.ProtocolVersion = "2.0"
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/federation/inbound", bad, nil))
}

func presenceStatusPersisted(t *testing.T, s *server) {
	bob := s.register("bob")
	bc := s.online(bob)
	assertEventuallyStatus(t, s, bob, domainagent.StatusOnline)

	require.NoError(t, bc.conn.Close())
	assertEventuallyStatus(t, s, bob, domainagent.StatusOffline)
}

func unregisteredAgentsRefused(t *testing.T, s *server) {
	alice := s.register("alice")
	bob := s.register("bob")
	const ghost = "AX-U-CN-9999"

	code := s.do(http.MethodPost, "/api/messages/", map[string]any{
		"from_id": alice, "to_id": ghost, "content": "hello",
	}, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code = s.do(http.MethodPost, "/api/messages/", map[string]any{
		"from_id": alice, "to_id": bob, "content": "hello", "content_type": "bogus",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var hist []domainmessage.Message
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/messages/history?a="+string(alice)+"&b="+ghost, nil, &hist))
	assert.Empty(t, hist)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/messages/history?a="+string(alice)+"&b="+string(bob), nil, &hist))
	assert.Empty(t, hist)

	code = s.do(http.MethodPost, "/api/tasks/", map[string]any{
		"from_id": alice, "to_id": ghost, "title": "translate",
	}, nil)
	assert.Equal(t, http.StatusNotFound, code)

	var sent []domaintask.Task
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/tasks/?ax_id="+string(alice)+"&role=sent", nil, &sent))
	assert.Empty(t, sent)
}
