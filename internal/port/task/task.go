package task

import (
	"context"

	domaintask "github.com/alanyang/agentlink/internal/domain/task"
)

// Repository manages task persistence.
type Repository interface {
	Create(ctx context.Context, t domaintask.Task) (domaintask.Task, error)
	GetByID(ctx context.Context, id string) (domaintask.Task, error)
	List(ctx context.Context, filters domaintask.ListFilters) ([]domaintask.Task, error)

	// UpdateStatus is a compare-and-swap on status. It returns
	// domaintask.ErrStatusConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to domaintask.Status, output map[string]any) (domaintask.Task, error)
}
