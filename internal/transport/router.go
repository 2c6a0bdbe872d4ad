package transport

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alanyang/agentlink/internal/metrics"
	portidempotency "github.com/alanyang/agentlink/internal/port/idempotency"
	agentsvc "github.com/alanyang/agentlink/internal/service/agent"
	contactsvc "github.com/alanyang/agentlink/internal/service/contact"
	fedsvc "github.com/alanyang/agentlink/internal/service/federation"
	"github.com/alanyang/agentlink/internal/service/messaging"
	"github.com/alanyang/agentlink/internal/service/presence"
	tasksvc "github.com/alanyang/agentlink/internal/service/task"

	agenthandler "github.com/alanyang/agentlink/internal/transport/agent"
	"github.com/alanyang/agentlink/internal/transport/auth"
	contacthandler "github.com/alanyang/agentlink/internal/transport/contact"
	federationhandler "github.com/alanyang/agentlink/internal/transport/federation"
	grouphandler "github.com/alanyang/agentlink/internal/transport/group"
	mcptransport "github.com/alanyang/agentlink/internal/transport/mcp"
	messagehandler "github.com/alanyang/agentlink/internal/transport/message"
	taskhandler "github.com/alanyang/agentlink/internal/transport/task"
	wshandler "github.com/alanyang/agentlink/internal/transport/ws"
)

// Services are the wired application services every surface shares.
type Services struct {
	Agents   *agentsvc.Service
	Presence *presence.Registry
	Router   *messaging.Router
	Contacts *contactsvc.Service
	Tasks    *tasksvc.Coordinator
	Gateway  *fedsvc.Gateway
	MCP      *mcptransport.Server
}

type Options struct {
	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int
	SendBuffer     int
	// MetricsPath is left unmounted when empty.
	MetricsPath string
	Metrics     *metrics.Collector
	Idempotency portidempotency.Store
	Signer      *auth.Signer
}

func NewRouter(ctx context.Context, svc Services, opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(CORSMiddleware(opts.CORSOrigin))
	r.Use(RateLimiter(ctx, opts.RateLimitRPS, opts.RateLimitBurst))
	r.Use(MetricsMiddleware(opts.Metrics))
	if opts.Idempotency != nil {
		r.Use(IdempotencyMiddleware(opts.Idempotency))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": svc.Presence.Count()})
	})
	if opts.MetricsPath != "" && opts.Metrics != nil {
		r.GET(opts.MetricsPath, gin.WrapH(opts.Metrics.Handler()))
	}

	api := r.Group("/api")

	agenthandler.Register(api.Group("/agents"), svc.Agents, svc.Presence)
	messagehandler.Register(api.Group("/messages"), svc.Router, svc.Agents)
	grouphandler.Register(api.Group("/groups"), svc.Router)
	taskhandler.Register(api.Group("/tasks"), svc.Tasks, svc.Agents)
	contacthandler.Register(api.Group("/contacts"), svc.Contacts)

	signer := opts.Signer
	if signer == nil {
		signer = auth.NewSigner("", "", 0)
	}
	federationhandler.Register(api.Group("/federation"), svc.Gateway, signer.Middleware())

	wshandler.NewHandler(svc.Presence, wshandler.Services{
		Agents:   svc.Agents,
		Router:   svc.Router,
		Contacts: svc.Contacts,
		Tasks:    svc.Tasks,
	}, opts.SendBuffer).Register(api.Group("/ws"))

	if svc.MCP != nil {
		r.Any("/mcp", gin.WrapH(svc.MCP.Handler()))
	}

	return r
}
