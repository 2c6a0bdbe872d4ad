package event

// PushType names a frame sent to a live connection.
type PushType string

const (
	PushOnlineAck         PushType = "online_ack"
	PushPresence          PushType = "presence"
	PushChatMessage       PushType = "chat_message"
	PushMessageSent       PushType = "message_sent"
	PushGroupMessage      PushType = "group_message"
	PushGroupMessageSent  PushType = "group_message_sent"
	PushFriendRequest     PushType = "friend_request"
	PushFriendRequestSent PushType = "friend_request_sent"
	PushFriendAccepted    PushType = "friend_accepted"
	PushFriendRejected    PushType = "friend_rejected"
	PushTaskReceived      PushType = "task_received"
	PushTaskSent          PushType = "task_sent"
	PushTaskUpdated       PushType = "task_updated"
	PushTaskResult        PushType = "task_result"
	PushPong              PushType = "pong"
	PushError             PushType = "error"
)

// Push is the frame delivered to a live connection.
type Push struct {
	Event PushType `json:"event"`
	Data  any      `json:"data"`
}

func NewPush(t PushType, data any) Push { return Push{Event: t, Data: data} }

// Presence is the payload of a presence push.
type Presence struct {
	AgentID string `json:"ax_id"`
	Status  string `json:"status"`
}
