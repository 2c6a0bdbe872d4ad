// Package federation accepts AIXP envelopes from other platforms and routes
// them into the messaging, contact and task services.
package federation

import (
	"context"
	"fmt"
	"log/slog"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domaincontact "github.com/alanyang/agentlink/internal/domain/contact"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	domaintask "github.com/alanyang/agentlink/internal/domain/task"
	"github.com/alanyang/agentlink/internal/metrics"
	portagent "github.com/alanyang/agentlink/internal/port/agent"
	"github.com/alanyang/agentlink/internal/service/messaging"
	tasksvc "github.com/alanyang/agentlink/internal/service/task"
)

// The gateway declares the narrow slices of each service it drives.

type MessageRouter interface {
	Send(ctx context.Context, in messaging.SendInput) (messaging.Delivery, error)
	SendGroup(ctx context.Context, in messaging.GroupSendInput) (messaging.GroupDelivery, error)
}

type Contacts interface {
	SendRequest(ctx context.Context, from, to domainagent.ID, message string, packet *envelope.Packet) (domaincontact.Contact, error)
	Accept(ctx context.Context, owner, requester domainagent.ID) error
	Reject(ctx context.Context, owner, requester domainagent.ID) error
}

type Tasks interface {
	Create(ctx context.Context, in tasksvc.CreateInput) (domaintask.Task, error)
	Complete(ctx context.Context, id string, output map[string]any) (domaintask.Task, error)
	Reject(ctx context.Context, id, reason string) (domaintask.Task, error)
}

type Gateway struct {
	router   MessageRouter
	contacts Contacts
	tasks    Tasks
	agents   portagent.Resolver
	metrics  *metrics.Collector
}

func NewGateway(router MessageRouter, contacts Contacts, tasks Tasks, agents portagent.Resolver, m *metrics.Collector) *Gateway {
	return &Gateway{router: router, contacts: contacts, tasks: tasks, agents: agents, metrics: m}
}

// Result reports what an accepted envelope turned into.
type Result struct {
	PacketID string          `json:"packet_id"`
	Type     envelope.Type   `json:"type"`
	Ack      envelope.Packet `json:"ack"`
	Data     any             `json:"data,omitempty"`
}

// Dispatch validates p and applies it. Validation failures wrap envelope.ErrInvalid.
func (g *Gateway) Dispatch(ctx context.Context, p envelope.Packet) (Result, error) {
	res, err := g.dispatch(ctx, p)
	g.metrics.EnvelopeHandled(string(p.Type), err)
	if err != nil {
		slog.WarnContext(ctx, "federation: envelope refused", "packet_id", p.ID, "type", p.Type, "error", err)
	}
	return res, err
}

func (g *Gateway) dispatch(ctx context.Context, p envelope.Packet) (Result, error) {
	if err := envelope.Validate(p).Err(); err != nil {
		return Result{}, err
	}

	from, to := domainagent.ID(p.From), domainagent.ID(p.To)
	res := Result{PacketID: p.ID, Type: p.Type, Ack: envelope.Ack(p.To, p.From, p.ID)}

	switch p.Type {
	case envelope.TypeChatMessage, envelope.TypeResourceShare:
		if err := g.agents.RequireExisting(ctx, from, to); err != nil {
			return Result{}, fmt.Errorf("federation %s: %w", p.Type, err)
		}
		d, err := g.router.Send(ctx, messaging.SendInput{
			From: from, To: to, Content: p.Content, ContentType: p.ContentType, Payload: p.Payload, Packet: &p,
		})
		if err != nil {
			return Result{}, fmt.Errorf("federation %s: %w", p.Type, err)
		}
		res.Data = d

	case envelope.TypeGroupMessage:
		d, err := g.router.SendGroup(ctx, messaging.GroupSendInput{
			GroupID: p.To, From: from, Content: p.Content, ContentType: p.ContentType, Payload: p.Payload, Packet: &p,
		})
		if err != nil {
			return Result{}, fmt.Errorf("federation %s: %w", p.Type, err)
		}
		res.Data = d

	case envelope.TypeFriendRequest:
		c, err := g.contacts.SendRequest(ctx, from, to, p.Content, &p)
		if err != nil {
			return Result{}, fmt.Errorf("federation %s: %w", p.Type, err)
		}
		res.Data = c

	case envelope.TypeFriendAccept:
		if err := g.contacts.Accept(ctx, from, to); err != nil {
			return Result{}, fmt.Errorf("federation %s: %w", p.Type, err)
		}

	case envelope.TypeFriendReject:
		if err := g.contacts.Reject(ctx, from, to); err != nil {
			return Result{}, fmt.Errorf("federation %s: %w", p.Type, err)
		}

	case envelope.TypeTaskDelegate:
		if err := g.agents.RequireExisting(ctx, from, to); err != nil {
			return Result{}, fmt.Errorf("federation %s: %w", p.Type, err)
		}
		d := p.Delegation()
		t, err := g.tasks.Create(ctx, tasksvc.CreateInput{
			From: from, To: to, Title: d.Title, Description: d.Description,
			Input: d.Input, Priority: d.Priority, Deadline: d.Deadline, Packet: &p,
		})
		if err != nil {
			return Result{}, fmt.Errorf("federation %s: %w", p.Type, err)
		}
		res.Data = t

	case envelope.TypeTaskResult:
		o := p.Outcome()
		var (
			t   domaintask.Task
			err error
		)
		if o.Status == string(domaintask.StatusRejected) {
			t, err = g.tasks.Reject(ctx, o.TaskID, o.Message)
		} else {
			t, err = g.tasks.Complete(ctx, o.TaskID, o.Output)
		}
		if err != nil {
			return Result{}, fmt.Errorf("federation %s: %w", p.Type, err)
		}
		res.Data = t

	case envelope.TypePresence, envelope.TypeAck:
		// Informational; nothing to store.
	}
	return res, nil
}
