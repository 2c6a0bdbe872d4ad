package message

import (
	"context"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
)

// Repository stores direct messages. Appends are atomic and immediately readable.
type Repository interface {
	Create(ctx context.Context, m domainmessage.Message) (domainmessage.Message, error)
	// History returns the newest page between a and b in chronological order.
	History(ctx context.Context, a, b domainagent.ID, page domainmessage.Page) ([]domainmessage.Message, error)
	MarkRead(ctx context.Context, to, from domainagent.ID) (int64, error)
	UnreadCounts(ctx context.Context, agentID domainagent.ID) ([]domainmessage.UnreadCount, error)
	Conversations(ctx context.Context, agentID domainagent.ID) ([]domainmessage.Conversation, error)
}
