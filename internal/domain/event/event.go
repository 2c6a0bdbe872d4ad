package event

import (
	"time"
)

type Type string

const (
	TypeAgentRegistered Type = "agent_registered"
	TypeAgentOnline     Type = "agent_online"
	TypeAgentOffline    Type = "agent_offline"
	TypeMessageSent     Type = "message_sent"
	TypeGroupMessage    Type = "group_message"
	TypeTaskCreated     Type = "task_created"
	TypeTaskUpdated     Type = "task_updated"
	TypeContactUpdated  Type = "contact_updated"
)

// Channel is a domain-scoped bus channel.
// All event types within a domain share one subscription.
type Channel string

const (
	ChannelAgent   Channel = "agent"
	ChannelMessage Channel = "message"
	ChannelTask    Channel = "task"
	ChannelContact Channel = "contact"
)

var typeToChannel = map[Type]Channel{
	TypeAgentRegistered: ChannelAgent,
	TypeAgentOnline:     ChannelAgent,
	TypeAgentOffline:    ChannelAgent,
	TypeMessageSent:     ChannelMessage,
	TypeGroupMessage:    ChannelMessage,
	TypeTaskCreated:     ChannelTask,
	TypeTaskUpdated:     ChannelTask,
	TypeContactUpdated:  ChannelContact,
}

// ChannelFor returns the domain channel for a given event type.
func ChannelFor(t Type) Channel { return typeToChannel[t] }

// Event carries identifiers only, not full state.
// Subscribers fetch fresh state from the appropriate repository.
type Event struct {
	Type      Type      `json:"type"`
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
}

func New(eventType Type, entityID string) Event {
	return Event{
		Type:      eventType,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
}
