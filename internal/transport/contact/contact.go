package contact

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	contactsvc "github.com/alanyang/agentlink/internal/service/contact"
	"github.com/alanyang/agentlink/internal/transport/httpx"
)

func Register(rg *gin.RouterGroup, svc *contactsvc.Service) {
	rg.POST("/requests", sendRequest(svc))
	rg.POST("/accept", answer(svc.Accept))
	rg.POST("/reject", answer(svc.Reject))
	rg.GET("/friends", friends(svc))
	rg.GET("/pending", pending(svc))
	rg.DELETE("/", removeFriend(svc))
}

type requestReq struct {
	FromID  string `json:"from_id" binding:"required"`
	ToID    string `json:"to_id" binding:"required"`
	Message string `json:"message"`
}

func sendRequest(svc *contactsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requestReq
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

		ct, err := svc.SendRequest(c.Request.Context(), from, to, req.Message, nil)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, ct)
	}
}

type answerReq struct {
	AgentID     string `json:"ax_id" binding:"required"`
	RequesterID string `json:"requester_id" binding:"required"`
}

// answer serves both accept and reject; ax_id is the agent answering.
func answer(fn func(ctx context.Context, owner, requester domainagent.ID) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req answerReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		owner, ok := httpx.AgentID(c, req.AgentID, "ax_id")
		if !ok {
			return
		}
		requester, ok := httpx.AgentID(c, req.RequesterID, "requester_id")
		if !ok {
			return
		}
		if err := fn(c.Request.Context(), owner, requester); err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func friends(svc *contactsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.AgentID(c, c.Query("ax_id"), "ax_id")
		if !ok {
			return
		}
		out, err := svc.Friends(c.Request.Context(), id)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.EmptyIfNil(out))
	}
}

func pending(svc *contactsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.AgentID(c, c.Query("ax_id"), "ax_id")
		if !ok {
			return
		}
		out, err := svc.Pending(c.Request.Context(), id)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.EmptyIfNil(out))
	}
}

// removeFriend serves DELETE /?ax_id=&friend_id=.
func removeFriend(svc *contactsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := httpx.AgentID(c, c.Query("ax_id"), "ax_id")
		if !ok {
			return
		}
		b, ok := httpx.AgentID(c, c.Query("friend_id"), "friend_id")
		if !ok {
			return
		}
		if err := svc.Remove(c.Request.Context(), a, b); err != nil {
			httpx.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
