package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpmcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
	portagent "github.com/alanyang/agentlink/internal/port/agent"
	agentsvc "github.com/alanyang/agentlink/internal/service/agent"
	"github.com/alanyang/agentlink/internal/service/messaging"
	tasksvc "github.com/alanyang/agentlink/internal/service/task"
)

// Services bundles what the tools call into.
type Services struct {
	Agents *agentsvc.Service
	Router *messaging.Router
	Tasks  *tasksvc.Coordinator
}

// RegisterTools registers all MCP tools on the server.
// [SRP] Tool registration only.
// [OCP] New tools only need another AddTool call here; server.go stays as is.
func RegisterTools(s *mcpserver.MCPServer, reg *SessionRegistry, svc Services) {
	s.AddTool(mcpmcp.NewTool("register_agent",
		mcpmcp.WithDescription("Register a new agent and receive its AX id (AX-U-CN-1234). The profile starts offline; call go_online to receive live messages on this session."),
		mcpmcp.WithString("nickname", mcpmcp.Required(), mcpmcp.Description("Display name")),
		mcpmcp.WithString("type", mcpmcp.Description("personal (default) or skill")),
		mcpmcp.WithString("platform", mcpmcp.Description("Host platform, e.g. openclaw")),
		mcpmcp.WithString("region", mcpmcp.Description("Two-letter region code, default CN")),
		mcpmcp.WithString("bio", mcpmcp.Description("Short description")),
	), registerAgentHandler(svc.Agents))

	s.AddTool(mcpmcp.NewTool("go_online",
		mcpmcp.WithDescription("Bind this session to an agent. Chat messages, task offers and results are then delivered as notifications on this session. A previous session for the same agent stops receiving them."),
		mcpmcp.WithString("ax_id", mcpmcp.Required(), mcpmcp.Description("AX id returned by register_agent")),
	), goOnlineHandler(reg, svc.Agents))

	s.AddTool(mcpmcp.NewTool("send_message",
		mcpmcp.WithDescription("Send a direct message. It is stored even when the recipient is offline; delivered reports whether it was pushed live."),
		mcpmcp.WithString("from_id", mcpmcp.Required(), mcpmcp.Description("Sender AX id")),
		mcpmcp.WithString("to_id", mcpmcp.Required(), mcpmcp.Description("Recipient AX id")),
		mcpmcp.WithString("content", mcpmcp.Required(), mcpmcp.Description("Message text")),
		mcpmcp.WithString("content_type", mcpmcp.Description("text (default), json, markdown, image, file")),
	), sendMessageHandler(svc.Agents, svc.Router))

	s.AddTool(mcpmcp.NewTool("send_group_message",
		mcpmcp.WithDescription("Send a message to a group you belong to. Online members other than you receive it live."),
		mcpmcp.WithString("group_id", mcpmcp.Required(), mcpmcp.Description("Group id (group_xxxxxxxx)")),
		mcpmcp.WithString("from_id", mcpmcp.Required(), mcpmcp.Description("Sender AX id")),
		mcpmcp.WithString("content", mcpmcp.Required(), mcpmcp.Description("Message text")),
	), sendGroupMessageHandler(svc.Router))

	s.AddTool(mcpmcp.NewTool("chat_history",
		mcpmcp.WithDescription("Read the conversation between two agents, oldest first."),
		mcpmcp.WithString("a", mcpmcp.Required(), mcpmcp.Description("First AX id")),
		mcpmcp.WithString("b", mcpmcp.Required(), mcpmcp.Description("Second AX id")),
		mcpmcp.WithNumber("limit", mcpmcp.Description("Page size, default 50, max 500")),
		mcpmcp.WithNumber("offset", mcpmcp.Description("Messages to skip from the newest")),
	), chatHistoryHandler(svc.Router))

	s.AddTool(mcpmcp.NewTool("delegate_task",
		mcpmcp.WithDescription("Delegate a task to another agent. It starts pending; the recipient accepts, then completes or rejects it."),
		mcpmcp.WithString("from_id", mcpmcp.Required(), mcpmcp.Description("Delegating AX id")),
		mcpmcp.WithString("to_id", mcpmcp.Required(), mcpmcp.Description("Receiving AX id")),
		mcpmcp.WithString("title", mcpmcp.Required(), mcpmcp.Description("Short task title")),
		mcpmcp.WithString("description", mcpmcp.Description("Details")),
		mcpmcp.WithString("priority", mcpmcp.Description("low, normal (default), high or urgent")),
		mcpmcp.WithObject("input_data", mcpmcp.Description("Structured task input")),
	), delegateTaskHandler(svc.Agents, svc.Tasks))

	s.AddTool(mcpmcp.NewTool("accept_task",
		mcpmcp.WithDescription("Accept a pending task. Moves it to in_progress."),
		mcpmcp.WithString("task_id", mcpmcp.Required(), mcpmcp.Description("Task id (task_xxxxxxxx)")),
	), acceptTaskHandler(svc.Tasks))

	s.AddTool(mcpmcp.NewTool("complete_task",
		mcpmcp.WithDescription("Complete an in_progress task with its output. The delegator receives the result."),
		mcpmcp.WithString("task_id", mcpmcp.Required(), mcpmcp.Description("Task id")),
		mcpmcp.WithObject("output_data", mcpmcp.Description("Structured result")),
	), completeTaskHandler(svc.Tasks))

	s.AddTool(mcpmcp.NewTool("reject_task",
		mcpmcp.WithDescription("Reject a pending or in_progress task."),
		mcpmcp.WithString("task_id", mcpmcp.Required(), mcpmcp.Description("Task id")),
		mcpmcp.WithString("reason", mcpmcp.Description("Why the task was rejected")),
	), rejectTaskHandler(svc.Tasks))

	s.AddTool(mcpmcp.NewTool("get_task",
		mcpmcp.WithDescription("Read a task with its current status and output."),
		mcpmcp.WithString("task_id", mcpmcp.Required(), mcpmcp.Description("Task id")),
	), getTaskHandler(svc.Tasks))

	s.AddTool(mcpmcp.NewTool("validate_envelope",
		mcpmcp.WithDescription("Check an AIXP envelope (JSON text) for required fields, protocol version and message type."),
		mcpmcp.WithString("envelope", mcpmcp.Required(), mcpmcp.Description("Envelope JSON")),
	), validateEnvelopeHandler())
}

// ── Tool handlers ─────────────────────────────────────────────────────────

func registerAgentHandler(agents *agentsvc.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		nickname := mcpmcp.ParseString(req, "nickname", "")
		kind := domainagent.Kind(mcpmcp.ParseString(req, "type", ""))
		if nickname == "" {
			return mcpmcp.NewToolResultText("error: nickname required"), nil
		}
		if kind != "" && !kind.Valid() {
			return mcpmcp.NewToolResultText("error: type must be personal or skill"), nil
		}

		a, err := agents.Register(ctx, agentsvc.RegisterInput{
			Nickname: nickname,
			Kind:     kind,
			Platform: mcpmcp.ParseString(req, "platform", "mcp"),
			Region:   mcpmcp.ParseString(req, "region", ""),
			Bio:      mcpmcp.ParseString(req, "bio", ""),
		})
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(a), nil
	}
}

func goOnlineHandler(reg *SessionRegistry, agents *agentsvc.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		id, errRes := agentArg(req, "ax_id")
		if errRes != nil {
			return errRes, nil
		}
		session := mcpserver.ClientSessionFromContext(ctx)
		if session == nil {
			return mcpmcp.NewToolResultText("error: go_online requires a streaming session"), nil
		}
		if err := agents.RequireExisting(ctx, id); err != nil {
			return errorResult(err), nil
		}

		reg.Bind(ctx, session.SessionID(), id)
		return jsonResult(map[string]any{"ax_id": id, "status": domainagent.StatusOnline}), nil
	}
}

func sendMessageHandler(agents portagent.Resolver, router *messaging.Router) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		from, errRes := agentArg(req, "from_id")
		if errRes != nil {
			return errRes, nil
		}
		to, errRes := agentArg(req, "to_id")
		if errRes != nil {
			return errRes, nil
		}
		if err := agents.RequireExisting(ctx, from, to); err != nil {
			return errorResult(err), nil
		}

		d, err := router.Send(ctx, messaging.SendInput{
			From:        from,
			To:          to,
			Content:     mcpmcp.ParseString(req, "content", ""),
			ContentType: envelope.ContentType(mcpmcp.ParseString(req, "content_type", "")),
		})
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(d), nil
	}
}

func sendGroupMessageHandler(router *messaging.Router) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		from, errRes := agentArg(req, "from_id")
		if errRes != nil {
			return errRes, nil
		}
		groupID := mcpmcp.ParseString(req, "group_id", "")
		if groupID == "" {
			return mcpmcp.NewToolResultText("error: group_id required"), nil
		}

		d, err := router.SendGroup(ctx, messaging.GroupSendInput{
			GroupID: groupID,
			From:    from,
			Content: mcpmcp.ParseString(req, "content", ""),
		})
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(d), nil
	}
}

func chatHistoryHandler(router *messaging.Router) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		a, errRes := agentArg(req, "a")
		if errRes != nil {
			return errRes, nil
		}
		b, errRes := agentArg(req, "b")
		if errRes != nil {
			return errRes, nil
		}
		page := domainmessage.Page{
			Limit:  mcpmcp.ParseInt(req, "limit", 0),
			Offset: mcpmcp.ParseInt(req, "offset", 0),
		}.Normalize()

		msgs, err := router.History(ctx, a, b, page)
		if err != nil {
			return errorResult(err), nil
		}
		if msgs == nil {
			msgs = []domainmessage.Message{}
		}
		return jsonResult(msgs), nil
	}
}

func delegateTaskHandler(agents portagent.Resolver, tasks *tasksvc.Coordinator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		from, errRes := agentArg(req, "from_id")
		if errRes != nil {
			return errRes, nil
		}
		to, errRes := agentArg(req, "to_id")
		if errRes != nil {
			return errRes, nil
		}
		if err := agents.RequireExisting(ctx, from, to); err != nil {
			return errorResult(err), nil
		}

		t, err := tasks.Create(ctx, tasksvc.CreateInput{
			From:        from,
			To:          to,
			Title:       mcpmcp.ParseString(req, "title", ""),
			Description: mcpmcp.ParseString(req, "description", ""),
			Priority:    mcpmcp.ParseString(req, "priority", ""),
			Input:       objectArg(req, "input_data"),
		})
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(t), nil
	}
}

func acceptTaskHandler(tasks *tasksvc.Coordinator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		t, err := tasks.Accept(ctx, mcpmcp.ParseString(req, "task_id", ""))
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(t), nil
	}
}

func completeTaskHandler(tasks *tasksvc.Coordinator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		t, err := tasks.Complete(ctx, mcpmcp.ParseString(req, "task_id", ""), objectArg(req, "output_data"))
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(t), nil
	}
}

func rejectTaskHandler(tasks *tasksvc.Coordinator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		t, err := tasks.Reject(ctx, mcpmcp.ParseString(req, "task_id", ""), mcpmcp.ParseString(req, "reason", ""))
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(t), nil
	}
}

func getTaskHandler(tasks *tasksvc.Coordinator) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		t, err := tasks.Get(ctx, mcpmcp.ParseString(req, "task_id", ""))
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(t), nil
	}
}

func validateEnvelopeHandler() mcpserver.ToolHandlerFunc {
	return func(_ context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		p, err := envelope.Decode([]byte(mcpmcp.ParseString(req, "envelope", "")))
		if err != nil {
			return jsonResult(envelope.Result{Reason: err.Error()}), nil
		}
		return jsonResult(envelope.Validate(p)), nil
	}
}

// ── helpers ───────────────────────────────────────────────────────────────

func agentArg(req mcpmcp.CallToolRequest, key string) (domainagent.ID, *mcpmcp.CallToolResult) {
	id := domainagent.ID(mcpmcp.ParseString(req, key, ""))
	if _, err := domainagent.Parse(id); err != nil {
		return "", mcpmcp.NewToolResultText(fmt.Sprintf("error: invalid %s", key))
	}
	return id, nil
}

func objectArg(req mcpmcp.CallToolRequest, key string) map[string]any {
	m, _ := req.GetArguments()[key].(map[string]any)
	return m
}

func jsonResult(v any) *mcpmcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(err)
	}
	return mcpmcp.NewToolResultText(string(data))
}

func errorResult(err error) *mcpmcp.CallToolResult {
	return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err))
}
