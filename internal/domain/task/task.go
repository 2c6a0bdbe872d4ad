package task

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStatusConflict means the stored status moved between read and write.
	ErrStatusConflict    = errors.New("task status changed concurrently")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrTitleRequired     = errors.New("task title required")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

var validTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusCompleted, StatusRejected},
	StatusCompleted:  {},
	StatusRejected:   {},
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps "" to normal and rejects unknown values.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", ErrInvalidPriority
	}
}

type Task struct {
	ID          string         `json:"task_id"`
	FromID      domainagent.ID `json:"from_id"`
	ToID        domainagent.ID `json:"to_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Input       map[string]any `json:"input_data"`
	Output      map[string]any `json:"output_data"`
	Priority    Priority       `json:"priority"`
	Status      Status         `json:"status"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func New(from, to domainagent.ID, title, description string, input map[string]any, priority Priority, deadline *time.Time) Task {
	now := time.Now().UTC()
	if input == nil {
		input = map[string]any{}
	}
	if priority == "" {
		priority = PriorityNormal
	}
	return Task{
		ID:          "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		FromID:      from,
		ToID:        to,
		Title:       title,
		Description: description,
		Input:       input,
		Output:      map[string]any{},
		Priority:    priority,
		Status:      StatusPending,
		Deadline:    deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RejectionOutput is the output payload stored on reject.
func RejectionOutput(reason string) map[string]any {
	return map[string]any{"reason": reason}
}

type ListFilters struct {
	FromID *domainagent.ID
	ToID   *domainagent.ID
	Status *Status
	Limit  int
}
