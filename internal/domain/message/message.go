package message

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/envelope"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrNotMember     = errors.New("sender is not a group member")
	ErrEmptyContent  = errors.New("content must not be empty")
	ErrOwnerLeave    = errors.New("group owner cannot leave the group")
	ErrNameRequired  = errors.New("group name required")
)

// Message is a durable direct message. Only Read ever changes after creation.
type Message struct {
	ID          string               `json:"msg_id"`
	FromID      domainagent.ID       `json:"from_id"`
	ToID        domainagent.ID       `json:"to_id"`
	ContentType envelope.ContentType `json:"content_type"`
	Content     string               `json:"content"`
	Payload     map[string]any       `json:"payload"`
	Read        bool                 `json:"read"`
	CreatedAt   time.Time            `json:"created_at"`
}

func New(from, to domainagent.ID, content string, contentType envelope.ContentType, payload map[string]any) Message {
	if contentType == "" {
		contentType = envelope.ContentText
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return Message{
		ID:          uuid.NewString(),
		FromID:      from,
		ToID:        to,
		ContentType: contentType,
		Content:     content,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type Member struct {
	AgentID  domainagent.ID `json:"ax_id"`
	Role     Role           `json:"role"`
	JoinedAt time.Time      `json:"joined_at"`
}

type Group struct {
	ID        string         `json:"group_id"`
	Name      string         `json:"name"`
	OwnerID   domainagent.ID `json:"owner_id"`
	Members   []Member       `json:"members"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewGroup seeds membership with the owner plus each distinct extra member.
func NewGroup(name string, owner domainagent.ID, members []domainagent.ID) Group {
	now := time.Now().UTC()
	g := Group{
		ID:        "group_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Name:      name,
		OwnerID:   owner,
		Members:   []Member{{AgentID: owner, Role: RoleOwner, JoinedAt: now}},
		CreatedAt: now,
	}
	seen := map[domainagent.ID]bool{owner: true}
	for _, m := range members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		g.Members = append(g.Members, Member{AgentID: m, Role: RoleMember, JoinedAt: now})
	}
	return g
}

func (g Group) HasMember(id domainagent.ID) bool {
	for _, m := range g.Members {
		if m.AgentID == id {
			return true
		}
	}
	return false
}

type GroupMessage struct {
	ID          string               `json:"msg_id"`
	GroupID     string               `json:"group_id"`
	FromID      domainagent.ID       `json:"from_id"`
	SenderName  string               `json:"sender_name,omitempty"`
	ContentType envelope.ContentType `json:"content_type"`
	Content     string               `json:"content"`
	Payload     map[string]any       `json:"payload"`
	CreatedAt   time.Time            `json:"created_at"`
}

func NewGroupMessage(groupID string, from domainagent.ID, content string, contentType envelope.ContentType, payload map[string]any) GroupMessage {
	if contentType == "" {
		contentType = envelope.ContentText
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return GroupMessage{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		FromID:      from,
		ContentType: contentType,
		Content:     content,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Page selects the newest Limit records after skipping Offset.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultHistoryLimit
	}
	if p.Limit > MaxHistoryLimit {
		p.Limit = MaxHistoryLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type UnreadCount struct {
	FromID domainagent.ID `json:"from_id"`
	Count  int            `json:"count"`
}

type Conversation struct {
	PeerID        domainagent.ID `json:"peer_id"`
	LastMessageAt time.Time      `json:"last_message_at"`
}
