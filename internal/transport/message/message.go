package message

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alanyang/agentlink/internal/domain/envelope"
	portagent "github.com/alanyang/agentlink/internal/port/agent"
	"github.com/alanyang/agentlink/internal/service/messaging"
	"github.com/alanyang/agentlink/internal/transport/httpx"
)

func Register(rg *gin.RouterGroup, router *messaging.Router, agents portagent.Resolver) {
	rg.POST("/", sendMessage(router, agents))
	rg.GET("/history", history(router))
	rg.POST("/read", markRead(router))
	rg.GET("/unread", unread(router))
	rg.GET("/conversations", conversations(router))
}

type sendReq struct {
	FromID      string               `json:"from_id" binding:"required"`
	ToID        string               `json:"to_id" binding:"required"`
	Content     string               `json:"content"`
	ContentType envelope.ContentType `json:"content_type"`
	Payload     map[string]any       `json:"payload"`
}

func sendMessage(router *messaging.Router, agents portagent.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendReq
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

		d, err := router.Send(c.Request.Context(), messaging.SendInput{
			From: from, To: to, Content: req.Content, ContentType: req.ContentType, Payload: req.Payload,
		})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	}
}

// history returns GET /history?a=&b=&limit=&offset=, oldest first.
func history(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := httpx.AgentID(c, c.Query("a"), "a")
		if !ok {
			return
		}
		b, ok := httpx.AgentID(c, c.Query("b"), "b")
		if !ok {
			return
		}
		page, ok := httpx.Page(c)
		if !ok {
			return
		}

		msgs, err := router.History(c.Request.Context(), a, b, page)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.EmptyIfNil(msgs))
	}
}

type markReadReq struct {
	AgentID string `json:"ax_id" binding:"required"`
	FromID  string `json:"from_id" binding:"required"`
}

func markRead(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req markReadReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		to, ok := httpx.AgentID(c, req.AgentID, "ax_id")
		if !ok {
			return
		}
		from, ok := httpx.AgentID(c, req.FromID, "from_id")
		if !ok {
			return
		}

		n, err := router.MarkRead(c.Request.Context(), to, from)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": n})
	}
}

func unread(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.AgentID(c, c.Query("ax_id"), "ax_id")
		if !ok {
			return
		}
		counts, err := router.Unread(c.Request.Context(), id)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.EmptyIfNil(counts))
	}
}

func conversations(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.AgentID(c, c.Query("ax_id"), "ax_id")
		if !ok {
			return
		}
		convs, err := router.Conversations(c.Request.Context(), id)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.EmptyIfNil(convs))
	}
}
