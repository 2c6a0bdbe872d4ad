// Package messaging routes direct and group messages.
//
// Every message is persisted before any live push. A push happens at most once
// per recipient per call and only when the recipient is present in the
// registry; offline recipients read the message later through history.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	"github.com/alanyang/agentlink/internal/domain/event"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
	"github.com/alanyang/agentlink/internal/metrics"
	portagent "github.com/alanyang/agentlink/internal/port/agent"
	portbus "github.com/alanyang/agentlink/internal/port/eventbus"
	portgroup "github.com/alanyang/agentlink/internal/port/group"
	portmessage "github.com/alanyang/agentlink/internal/port/message"
	portnotifier "github.com/alanyang/agentlink/internal/port/notifier"
)

// Router delivers messages and owns group management.
// [DIP] Depends on ports, never on adapters or transport.
type Router struct {
	messages portmessage.Repository
	groups   portgroup.Repository
	names    portagent.IdentityLookup
	notifier portnotifier.AgentNotifier
	bus      portbus.EventBus
	metrics  *metrics.Collector
}

func NewRouter(
	messages portmessage.Repository,
	groups portgroup.Repository,
	names portagent.IdentityLookup,
	notifier portnotifier.AgentNotifier,
	bus portbus.EventBus,
	m *metrics.Collector,
) *Router {
	return &Router{
		messages: messages,
		groups:   groups,
		names:    names,
		notifier: notifier,
		bus:      bus,
		metrics:  m,
	}
}

type SendInput struct {
	From        domainagent.ID
	To          domainagent.ID
	Content     string
	ContentType envelope.ContentType
	Payload     map[string]any
	// Packet is set when the message arrived as a federation envelope.
	Packet *envelope.Packet
}

// DirectPush is the live frame payload for a direct message.
type DirectPush struct {
	domainmessage.Message
	Packet *envelope.Packet `json:"packet,omitempty"`
}

// Delivery is the sender's acknowledgement.
type Delivery struct {
	Message   domainmessage.Message `json:"message"`
	Packet    *envelope.Packet      `json:"packet,omitempty"`
	Delivered bool                  `json:"delivered"`
}

// Send persists a direct message and pushes it to the recipient when online.
// Push outcome never changes the result.
func (r *Router) Send(ctx context.Context, in SendInput) (Delivery, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.Payload) == 0 {
		return Delivery{}, fmt.Errorf("send message: %w", domainmessage.ErrEmptyContent)
	}
	if err := checkContentType(in.ContentType); err != nil {
		return Delivery{}, fmt.Errorf("send message: %w", err)
	}

	stored, err := r.messages.Create(ctx, domainmessage.New(in.From, in.To, in.Content, in.ContentType, in.Payload))
	if err != nil {
		return Delivery{}, fmt.Errorf("send message: %w", err)
	}

	live := r.notifier.NotifyAgent(ctx, stored.ToID, event.NewPush(event.PushChatMessage, DirectPush{Message: stored, Packet: in.Packet}))
	r.metrics.MessageRouted("direct", live)

	if err := r.bus.Publish(ctx, event.New(event.TypeMessageSent, stored.ID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish MessageSent event", "msg_id", stored.ID, "error", err)
	}

	return Delivery{Message: stored, Packet: in.Packet, Delivered: live}, nil
}

type GroupSendInput struct {
	GroupID     string
	From        domainagent.ID
	Content     string
	ContentType envelope.ContentType
	Payload     map[string]any
	Packet      *envelope.Packet
}

// GroupPush is the live frame payload for a group message.
type GroupPush struct {
	domainmessage.GroupMessage
	Packet *envelope.Packet `json:"packet,omitempty"`
}

type GroupDelivery struct {
	Message domainmessage.GroupMessage `json:"message"`
	Packet  *envelope.Packet           `json:"packet,omitempty"`
	// Live counts members other than the sender that were online.
	Live int `json:"live"`
}

// SendGroup persists a group message and fans it out to every online member
// except the sender. Membership is resolved on every call.
func (r *Router) SendGroup(ctx context.Context, in GroupSendInput) (GroupDelivery, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.Payload) == 0 {
		return GroupDelivery{}, fmt.Errorf("send group message: %w", domainmessage.ErrEmptyContent)
	}
	if err := checkContentType(in.ContentType); err != nil {
		return GroupDelivery{}, fmt.Errorf("send group message: %w", err)
	}

	members, err := r.groups.MembersOf(ctx, in.GroupID)
	if err != nil {
		return GroupDelivery{}, fmt.Errorf("send group message: %w", err)
	}
	if !isMember(members, in.From) {
		return GroupDelivery{}, fmt.Errorf("send group message: %s in %s: %w", in.From, in.GroupID, domainmessage.ErrNotMember)
	}

	gm := domainmessage.NewGroupMessage(in.GroupID, in.From, in.Content, in.ContentType, in.Payload)
	gm.SenderName = r.displayName(ctx, in.From)

	stored, err := r.groups.CreateMessage(ctx, gm)
	if err != nil {
		return GroupDelivery{}, fmt.Errorf("send group message: %w", err)
	}
	if stored.SenderName == "" {
		stored.SenderName = gm.SenderName
	}

	push := event.NewPush(event.PushGroupMessage, GroupPush{GroupMessage: stored, Packet: in.Packet})
	live := 0
	for _, m := range members {
		if m.AgentID == in.From {
			continue
		}
		if r.notifier.NotifyAgent(ctx, m.AgentID, push) {
			live++
		}
	}
	r.metrics.MessageRouted("group", live > 0)

	if err := r.bus.Publish(ctx, event.New(event.TypeGroupMessage, stored.ID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish GroupMessage event", "msg_id", stored.ID, "error", err)
	}

	return GroupDelivery{Message: stored, Packet: in.Packet, Live: live}, nil
}

// History returns messages between a and b, oldest first within the page.
func (r *Router) History(ctx context.Context, a, b domainagent.ID, page domainmessage.Page) ([]domainmessage.Message, error) {
	msgs, err := r.messages.History(ctx, a, b, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	return msgs, nil
}

func (r *Router) GroupHistory(ctx context.Context, groupID string, page domainmessage.Page) ([]domainmessage.GroupMessage, error) {
	msgs, err := r.groups.History(ctx, groupID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("group history: %w", err)
	}
	return msgs, nil
}

// MarkRead marks every message from -> to as read and returns how many changed.
func (r *Router) MarkRead(ctx context.Context, to, from domainagent.ID) (int64, error) {
	n, err := r.messages.MarkRead(ctx, to, from)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

func (r *Router) Unread(ctx context.Context, agentID domainagent.ID) ([]domainmessage.UnreadCount, error) {
	counts, err := r.messages.UnreadCounts(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	return counts, nil
}

func (r *Router) Conversations(ctx context.Context, agentID domainagent.ID) ([]domainmessage.Conversation, error) {
	convs, err := r.messages.Conversations(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("conversations: %w", err)
	}
	return convs, nil
}

func (r *Router) displayName(ctx context.Context, id domainagent.ID) string {
	name, err := r.names.DisplayName(ctx, id)
	if err != nil || name == "" {
		return string(id)
	}
	return name
}

// checkContentType accepts an empty tag, which the message constructors turn
// into text.
func checkContentType(ct envelope.ContentType) error {
	if ct == "" || ct.Valid() {
		return nil
	}
	return fmt.Errorf("%w: unknown content type %q", envelope.ErrInvalid, ct)
}

func isMember(members []domainmessage.Member, id domainagent.ID) bool {
	for _, m := range members {
		if m.AgentID == id {
			return true
		}
	}
	return false
}
