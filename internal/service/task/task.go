// Package task implements the delegation state machine.
//
// Every entry point (REST, realtime channel, MCP tools, federation) calls the
// same Coordinator methods, and every status change goes through transition.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	"github.com/alanyang/agentlink/internal/domain/event"
	domaintask "github.com/alanyang/agentlink/internal/domain/task"
	"github.com/alanyang/agentlink/internal/metrics"
	portbus "github.com/alanyang/agentlink/internal/port/eventbus"
	portnotifier "github.com/alanyang/agentlink/internal/port/notifier"
	porttask "github.com/alanyang/agentlink/internal/port/task"
)

// casAttempts bounds re-reads after a concurrent status change.
const casAttempts = 3

// Coordinator manages task lifecycle.
// [DIP] Depends on ports, never on adapters or transport.
type Coordinator struct {
	repo     porttask.Repository
	notifier portnotifier.AgentNotifier
	bus      portbus.EventBus
	metrics  *metrics.Collector
}

func NewCoordinator(repo porttask.Repository, notifier portnotifier.AgentNotifier, bus portbus.EventBus, m *metrics.Collector) *Coordinator {
	return &Coordinator{repo: repo, notifier: notifier, bus: bus, metrics: m}
}

type CreateInput struct {
	From        domainagent.ID
	To          domainagent.ID
	Title       string
	Description string
	Input       map[string]any
	Priority    string
	Deadline    *time.Time
	// Packet is the inbound envelope when the task arrived over federation.
	Packet *envelope.Packet
}

// Push is the live frame payload for task events.
type Push struct {
	domaintask.Task
	Packet *envelope.Packet `json:"packet,omitempty"`
}

// Create stores a pending task and offers it to the recipient.
func (c *Coordinator) Create(ctx context.Context, in CreateInput) (domaintask.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domaintask.Task{}, fmt.Errorf("create task: %w", domaintask.ErrTitleRequired)
	}
	priority, err := domaintask.ParsePriority(in.Priority)
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("create task: %w: %q", err, in.Priority)
	}

	created, err := c.repo.Create(ctx, domaintask.New(in.From, in.To, in.Title, in.Description, in.Input, priority, in.Deadline))
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("create task: %w", err)
	}

	packet := in.Packet
	if packet == nil {
		p := envelope.TaskDelegation(string(created.FromID), string(created.ToID), envelope.Delegation{
			TaskID:      created.ID,
			Title:       created.Title,
			Description: created.Description,
			Input:       created.Input,
			Priority:    string(created.Priority),
			Deadline:    created.Deadline,
		})
		packet = &p
	}
	c.notifier.NotifyAgent(ctx, created.ToID, event.NewPush(event.PushTaskReceived, Push{Task: created, Packet: packet}))

	c.bus.Publish(ctx, event.New(event.TypeTaskCreated, created.ID)) //nolint:errcheck
	return created, nil
}

// Accept moves pending → in_progress.
func (c *Coordinator) Accept(ctx context.Context, id string) (domaintask.Task, error) {
	t, err := c.transition(ctx, id, domaintask.StatusInProgress, nil)
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("accept task: %w", err)
	}
	c.notifier.NotifyAgent(ctx, t.FromID, event.NewPush(event.PushTaskUpdated, Push{Task: t}))
	return t, nil
}

// Complete moves in_progress → completed and stores output.
func (c *Coordinator) Complete(ctx context.Context, id string, output map[string]any) (domaintask.Task, error) {
	if output == nil {
		output = map[string]any{}
	}
	t, err := c.transition(ctx, id, domaintask.StatusCompleted, output)
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("complete task: %w", err)
	}
	c.pushResult(ctx, t, "")
	return t, nil
}

// Reject moves pending or in_progress → rejected and stores {reason}.
func (c *Coordinator) Reject(ctx context.Context, id, reason string) (domaintask.Task, error) {
	t, err := c.transition(ctx, id, domaintask.StatusRejected, domaintask.RejectionOutput(reason))
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("reject task: %w", err)
	}
	c.pushResult(ctx, t, reason)
	return t, nil
}

func (c *Coordinator) Get(ctx context.Context, id string) (domaintask.Task, error) {
	t, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListSent returns tasks delegated by agentID, newest first.
func (c *Coordinator) ListSent(ctx context.Context, agentID domainagent.ID) ([]domaintask.Task, error) {
	tasks, err := c.repo.List(ctx, domaintask.ListFilters{FromID: &agentID})
	if err != nil {
		return nil, fmt.Errorf("list sent tasks: %w", err)
	}
	return tasks, nil
}

// ListReceived returns tasks delegated to agentID, newest first.
func (c *Coordinator) ListReceived(ctx context.Context, agentID domainagent.ID) ([]domaintask.Task, error) {
	tasks, err := c.repo.List(ctx, domaintask.ListFilters{ToID: &agentID})
	if err != nil {
		return nil, fmt.Errorf("list received tasks: %w", err)
	}
	return tasks, nil
}

// transition is the only code path that changes a task's status. A nil output
// keeps the stored one. Transitions outside the table, including any from a
// terminal state, fail with ErrInvalidTransition and change nothing.
func (c *Coordinator) transition(ctx context.Context, id string, to domaintask.Status, output map[string]any) (domaintask.Task, error) {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := c.repo.GetByID(ctx, id)
		if err != nil {
			c.metrics.TaskTransition(string(to), err)
			return domaintask.Task{}, err
		}
		if !current.Status.CanTransitionTo(to) {
			err := fmt.Errorf("%w: %s → %s", domaintask.ErrInvalidTransition, current.Status, to)
			c.metrics.TaskTransition(string(to), err)
			return domaintask.Task{}, err
		}

		out := output
		if out == nil {
			out = current.Output
		}
		updated, err := c.repo.UpdateStatus(ctx, id, current.Status, to, out)
		if errors.Is(err, domaintask.ErrStatusConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			c.metrics.TaskTransition(string(to), err)
			return domaintask.Task{}, err
		}

		c.metrics.TaskTransition(string(to), nil)
		c.bus.Publish(ctx, event.New(event.TypeTaskUpdated, id)) //nolint:errcheck
		return updated, nil
	}
	c.metrics.TaskTransition(string(to), lastErr)
	return domaintask.Task{}, lastErr
}

func (c *Coordinator) pushResult(ctx context.Context, t domaintask.Task, reason string) {
	p := envelope.TaskResult(string(t.ToID), string(t.FromID), envelope.Outcome{
		TaskID:  t.ID,
		Status:  string(t.Status),
		Output:  t.Output,
		Message: reason,
	})
	if !c.notifier.NotifyAgent(ctx, t.FromID, event.NewPush(event.PushTaskResult, Push{Task: t, Packet: &p})) {
		slog.DebugContext(ctx, "task result stored for offline delegator", "task_id", t.ID, "from_id", t.FromID)
	}
}
