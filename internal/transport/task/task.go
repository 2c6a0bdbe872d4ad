package task

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	portagent "github.com/alanyang/agentlink/internal/port/agent"
	tasksvc "github.com/alanyang/agentlink/internal/service/task"
	"github.com/alanyang/agentlink/internal/transport/httpx"
)

func Register(rg *gin.RouterGroup, svc *tasksvc.Coordinator, agents portagent.Resolver) {
	rg.POST("/", createTask(svc, agents))
	rg.GET("/", listTasks(svc))
	rg.GET("/:id", getTask(svc))
	rg.POST("/:id/accept", acceptTask(svc))
	rg.POST("/:id/complete", completeTask(svc))
	rg.POST("/:id/reject", rejectTask(svc))
}

type createTaskReq struct {
	FromID      string         `json:"from_id" binding:"required"`
	ToID        string         `json:"to_id" binding:"required"`
	Title       string         `json:"title" binding:"required"`
	Description string         `json:"description"`
	InputData   map[string]any `json:"input_data"`
	Priority    string         `json:"priority"`
	Deadline    *time.Time     `json:"deadline"`
}

func createTask(svc *tasksvc.Coordinator, agents portagent.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTaskReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		from, ok := httpx.AgentID(c, req.FromID, "from_id")
		if !ok {
			return
		}
		to, ok := httpx.AgentID(c, req.ToID, "to_id")
		if !ok {
			return
		}
		if err := agents.RequireExisting(c.Request.Context(), from, to); err != nil {
			httpx.Error(c, err)
			return
		}

		t, err := svc.Create(c.Request.Context(), tasksvc.CreateInput{
			From:        from,
			To:          to,
			Title:       req.Title,
			Description: req.Description,
			Input:       req.InputData,
			Priority:    req.Priority,
			Deadline:    req.Deadline,
		})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

// listTasks serves GET /?ax_id=&role=sent|received. role defaults to received.
func listTasks(svc *tasksvc.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.AgentID(c, c.Query("ax_id"), "ax_id")
		if !ok {
			return
		}

		list := svc.ListReceived
		switch c.DefaultQuery("role", "received") {
		case "received":
		case "sent":
			list = svc.ListSent
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be sent or received"})
			return
		}

		tasks, err := list(c.Request.Context(), id)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.EmptyIfNil(tasks))
	}
}

func getTask(svc *tasksvc.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

func acceptTask(svc *tasksvc.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.Accept(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

type completeReq struct {
	OutputData map[string]any `json:"output_data"`
}

func completeTask(svc *tasksvc.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req completeReq
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		t, err := svc.Complete(c.Request.Context(), c.Param("id"), req.OutputData)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

type rejectReq struct {
	Reason string `json:"reason"`
}

func rejectTask(svc *tasksvc.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rejectReq
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		t, err := svc.Reject(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}
