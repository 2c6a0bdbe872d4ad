package notifier

import (
	"context"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
)

// AgentNotifier pushes an event to a specific agent's live connection.
// It reports whether the agent was online; a failed or dropped push is not an error.
// [DIP] Router and coordinator depend on this abstraction, not on the presence registry.
type AgentNotifier interface {
	NotifyAgent(ctx context.Context, agentID domainagent.ID, event any) bool
}
