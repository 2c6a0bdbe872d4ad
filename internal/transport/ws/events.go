package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	"github.com/alanyang/agentlink/internal/domain/event"
	domaintask "github.com/alanyang/agentlink/internal/domain/task"
	agentsvc "github.com/alanyang/agentlink/internal/service/agent"
	contactsvc "github.com/alanyang/agentlink/internal/service/contact"
	"github.com/alanyang/agentlink/internal/service/messaging"
	tasksvc "github.com/alanyang/agentlink/internal/service/task"
)

// Services are the same service instances the REST handlers use, so both
// entry points share one state-transition path.
type Services struct {
	Agents   *agentsvc.Service
	Router   *messaging.Router
	Contacts *contactsvc.Service
	Tasks    *tasksvc.Coordinator
}

var (
	errNotAnnounced   = errors.New("announce with an online event first")
	errSenderMismatch = errors.New("from does not match the announced agent")
	errNotAssignee    = errors.New("task is delegated to another agent")
)

// Inbound payloads. Field names follow the client SDKs.

type chatIn struct {
	From        domainagent.ID       `json:"from"`
	To          domainagent.ID       `json:"to"`
	Content     string               `json:"content"`
	ContentType envelope.ContentType `json:"type"`
	Payload     map[string]any       `json:"payload"`
}

type groupIn struct {
	From        domainagent.ID       `json:"from"`
	GroupID     string               `json:"groupId"`
	Content     string               `json:"content"`
	ContentType envelope.ContentType `json:"type"`
	Payload     map[string]any       `json:"payload"`
}

type friendRequestIn struct {
	From    domainagent.ID `json:"from"`
	To      domainagent.ID `json:"to"`
	Message string         `json:"message"`
}

// friendAnswerIn names the requester being answered.
type friendAnswerIn struct {
	Friend domainagent.ID `json:"friend"`
}

type taskDelegateIn struct {
	From        domainagent.ID `json:"from"`
	To          domainagent.ID `json:"to"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Input       map[string]any `json:"inputData"`
	Priority    string         `json:"priority"`
	Deadline    *time.Time     `json:"deadline"`
}

type taskRefIn struct {
	TaskID string `json:"taskId"`
}

type taskResultIn struct {
	TaskID string         `json:"taskId"`
	Output map[string]any `json:"outputData"`
	Status string         `json:"status"`
	Reason string         `json:"reason"`
}

func (h *Handler) dispatch(ctx context.Context, s *Session, in frame) {
	switch in.Event {
	case "ping":
		s.Notify(event.NewPush(event.PushPong, map[string]int64{"ts": time.Now().UnixMilli()}))
		return
	case "online":
		h.reply(s, in.Event, event.PushOnlineAck)(h.online(ctx, s, in.Data))
		return
	}

	self, ok := h.presence.AgentOf(s)
	if !ok {
		s.Notify(errorFrame(errNotAnnounced.Error()))
		return
	}

	switch in.Event {
	case "chat_message":
		h.reply(s, in.Event, event.PushMessageSent)(h.chat(ctx, self, in.Data))
	case "group_message":
		h.reply(s, in.Event, event.PushGroupMessageSent)(h.groupChat(ctx, self, in.Data))
	case "friend_request":
		h.reply(s, in.Event, event.PushFriendRequestSent)(h.friendRequest(ctx, self, in.Data))
	case "friend_accept":
		h.reply(s, in.Event, "")(nil, h.friendAnswer(ctx, self, in.Data, h.svc.Contacts.Accept))
	case "friend_reject":
		h.reply(s, in.Event, "")(nil, h.friendAnswer(ctx, self, in.Data, h.svc.Contacts.Reject))
	case "task_delegate":
		h.reply(s, in.Event, event.PushTaskSent)(h.taskDelegate(ctx, self, in.Data))
	case "task_accept":
		h.reply(s, in.Event, event.PushTaskUpdated)(h.taskAccept(ctx, self, in.Data))
	case "task_result":
		h.reply(s, in.Event, event.PushTaskUpdated)(h.taskResult(ctx, self, in.Data))
	default:
		s.Notify(errorFrame(fmt.Sprintf("unknown event %q", in.Event)))
	}
}

// reply sends ack on success or an error frame to this session only.
// An empty ack sends nothing on success.
func (h *Handler) reply(s *Session, name string, ack event.PushType) func(any, error) {
	return func(data any, err error) {
		if err != nil {
			h.logger.Debug("realtime event refused", "event", name, "session", s.id, "error", err)
			s.Notify(errorFrame(err.Error()))
			return
		}
		if ack != "" {
			s.Notify(event.NewPush(ack, data))
		}
	}
}

func (h *Handler) online(ctx context.Context, s *Session, raw json.RawMessage) (any, error) {
	var id domainagent.ID
	if err := json.Unmarshal(raw, &id); err != nil {
		var obj struct {
			AgentID domainagent.ID `json:"ax_id"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("online: %w", domainagent.ErrInvalidID)
		}
		id = obj.AgentID
	}
	if _, err := domainagent.Parse(id); err != nil {
		return nil, fmt.Errorf("online: %w", err)
	}
	if err := h.svc.Agents.RequireExisting(ctx, id); err != nil {
		return nil, fmt.Errorf("online: %w", err)
	}

	h.presence.Announce(ctx, s, id)
	return map[string]any{"ax_id": id, "online": h.presence.Count()}, nil
}

func (h *Handler) chat(ctx context.Context, self domainagent.ID, raw json.RawMessage) (any, error) {
	var in chatIn
	if err := decode(raw, &in, self, &in.From); err != nil {
		return nil, err
	}
	if err := h.recipient(ctx, in.To); err != nil {
		return nil, err
	}
	p := envelope.ChatMessage(string(self), string(in.To), in.Content, in.ContentType)
	return h.svc.Router.Send(ctx, messaging.SendInput{
		From: self, To: in.To, Content: in.Content, ContentType: in.ContentType, Payload: in.Payload, Packet: &p,
	})
}

func (h *Handler) groupChat(ctx context.Context, self domainagent.ID, raw json.RawMessage) (any, error) {
	var in groupIn
	if err := decode(raw, &in, self, &in.From); err != nil {
		return nil, err
	}
	p := envelope.GroupMessage(string(self), in.GroupID, in.Content, in.ContentType)
	return h.svc.Router.SendGroup(ctx, messaging.GroupSendInput{
		GroupID: in.GroupID, From: self, Content: in.Content, ContentType: in.ContentType, Payload: in.Payload, Packet: &p,
	})
}

func (h *Handler) friendRequest(ctx context.Context, self domainagent.ID, raw json.RawMessage) (any, error) {
	var in friendRequestIn
	if err := decode(raw, &in, self, &in.From); err != nil {
		return nil, err
	}
	if _, err := domainagent.Parse(in.To); err != nil {
		return nil, err
	}
	if _, err := h.svc.Contacts.SendRequest(ctx, self, in.To, in.Message, nil); err != nil {
		return nil, err
	}
	return map[string]domainagent.ID{"to": in.To}, nil
}

func (h *Handler) friendAnswer(ctx context.Context, self domainagent.ID, raw json.RawMessage, answer func(ctx context.Context, owner, requester domainagent.ID) error) error {
	var in friendAnswerIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("malformed data: %w", err)
	}
	if _, err := domainagent.Parse(in.Friend); err != nil {
		return err
	}
	return answer(ctx, self, in.Friend)
}

func (h *Handler) taskDelegate(ctx context.Context, self domainagent.ID, raw json.RawMessage) (any, error) {
	var in taskDelegateIn
	if err := decode(raw, &in, self, &in.From); err != nil {
		return nil, err
	}
	if err := h.recipient(ctx, in.To); err != nil {
		return nil, err
	}
	return h.svc.Tasks.Create(ctx, tasksvc.CreateInput{
		From:        self,
		To:          in.To,
		Title:       in.Title,
		Description: in.Description,
		Input:       in.Input,
		Priority:    in.Priority,
		Deadline:    in.Deadline,
	})
}

func (h *Handler) taskAccept(ctx context.Context, self domainagent.ID, raw json.RawMessage) (any, error) {
	var in taskRefIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("malformed data: %w", err)
	}
	if err := h.assignee(ctx, self, in.TaskID); err != nil {
		return nil, err
	}
	return h.svc.Tasks.Accept(ctx, in.TaskID)
}

// taskResult completes the task, or rejects it when status is "rejected".
func (h *Handler) taskResult(ctx context.Context, self domainagent.ID, raw json.RawMessage) (any, error) {
	var in taskResultIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("malformed data: %w", err)
	}
	if err := h.assignee(ctx, self, in.TaskID); err != nil {
		return nil, err
	}
	if domaintask.Status(in.Status) == domaintask.StatusRejected {
		reason := in.Reason
		if r, ok := in.Output["reason"].(string); ok && reason == "" {
			reason = r
		}
		return h.svc.Tasks.Reject(ctx, in.TaskID, reason)
	}
	return h.svc.Tasks.Complete(ctx, in.TaskID, in.Output)
}

// recipient checks that to is a well-formed, issued identity.
func (h *Handler) recipient(ctx context.Context, to domainagent.ID) error {
	if _, err := domainagent.Parse(to); err != nil {
		return err
	}
	return h.svc.Agents.RequireExisting(ctx, to)
}

// assignee refuses task updates from anyone but the task's recipient.
func (h *Handler) assignee(ctx context.Context, self domainagent.ID, taskID string) error {
	t, err := h.svc.Tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.ToID != self {
		return errNotAssignee
	}
	return nil
}

// decode unmarshals raw into dst and checks the optional from field against
// the announced agent.
func decode(raw json.RawMessage, dst any, self domainagent.ID, from *domainagent.ID) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed data: %w", err)
	}
	if *from != "" && *from != self {
		return errSenderMismatch
	}
	return nil
}
