package envelope

import "time"

func FriendRequest(from, to, message string) Packet {
	if message == "" {
		message = "request to add friend"
	}
	return Build(TypeFriendRequest, from, to, message, ContentText, Payload{"action": "add"})
}

func FriendAccept(from, to string) Packet {
	return Build(TypeFriendAccept, from, to, "friend request accepted", ContentText, Payload{"action": "accept"})
}

func FriendReject(from, to string) Packet {
	return Build(TypeFriendReject, from, to, "friend request rejected", ContentText, Payload{"action": "reject"})
}

func ChatMessage(from, to, content string, contentType ContentType) Packet {
	return Build(TypeChatMessage, from, to, content, contentType, nil)
}

func GroupMessage(from, groupID, content string, contentType ContentType) Packet {
	return Build(TypeGroupMessage, from, groupID, content, contentType, nil)
}

// Delegation is the task_delegate payload.
type Delegation struct {
	TaskID      string
	Title       string
	Description string
	Input       map[string]any
	Priority    string
	Deadline    *time.Time
}

func TaskDelegation(from, to string, d Delegation) Packet {
	priority := d.Priority
	if priority == "" {
		priority = "normal"
	}
	payload := Payload{
		"taskId":      d.TaskID,
		"title":       d.Title,
		"description": d.Description,
		"inputData":   orEmpty(d.Input),
		"priority":    priority,
	}
	if d.Deadline != nil {
		payload["deadline"] = d.Deadline.UTC().Format(time.RFC3339)
	}
	return Build(TypeTaskDelegate, from, to, d.Title, ContentTask, payload)
}

// Outcome is the task_result payload.
type Outcome struct {
	TaskID  string
	Status  string
	Output  map[string]any
	Message string
}

func TaskResult(from, to string, o Outcome) Packet {
	status := o.Status
	if status == "" {
		status = "completed"
	}
	return Build(TypeTaskResult, from, to, o.Message, ContentJSON, Payload{
		"taskId":     o.TaskID,
		"status":     status,
		"outputData": orEmpty(o.Output),
		"message":    o.Message,
	})
}

func Presence(from, status string) Packet {
	return Build(TypePresence, from, "*", status, ContentText, Payload{"status": status})
}

func Ack(from, to, packetID string) Packet {
	return Build(TypeAck, from, to, "", ContentText, Payload{"ackId": packetID})
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
