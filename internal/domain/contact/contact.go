package contact

import (
	"errors"
	"time"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
)

var (
	ErrSelf           = errors.New("cannot add yourself as a friend")
	ErrAlreadyFriends = errors.New("already friends")
	ErrRequestPending = errors.New("friend request already sent")
	ErrNoRequest      = errors.New("no pending friend request")
	ErrNotFound       = errors.New("contact not found")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Contact is a directed edge owner -> friend. A friendship is two accepted edges;
// a request is a single pending edge from the requester.
type Contact struct {
	OwnerID   domainagent.ID `json:"owner_id"`
	FriendID  domainagent.ID `json:"friend_id"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func New(owner, friend domainagent.ID, status Status, message string) Contact {
	now := time.Now().UTC()
	return Contact{
		OwnerID:   owner,
		FriendID:  friend,
		Status:    status,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
