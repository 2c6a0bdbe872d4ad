package group

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	"github.com/alanyang/agentlink/internal/service/messaging"
	"github.com/alanyang/agentlink/internal/transport/httpx"
)

func Register(rg *gin.RouterGroup, router *messaging.Router) {
	rg.POST("/", createGroup(router))
	rg.GET("/", listGroups(router))
	rg.GET("/:id", getGroup(router))
	rg.POST("/:id/members", addMember(router))
	rg.DELETE("/:id/members/:agentId", removeMember(router))
	rg.POST("/:id/messages", sendGroupMessage(router))
	rg.GET("/:id/messages", groupHistory(router))
}

type createReq struct {
	Name    string   `json:"name" binding:"required"`
	OwnerID string   `json:"owner_id" binding:"required"`
	Members []string `json:"members"`
}

func createGroup(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		owner, ok := httpx.AgentID(c, req.OwnerID, "owner_id")
		if !ok {
			return
		}
		members := make([]domainagent.ID, 0, len(req.Members))
		for _, raw := range req.Members {
			id, ok := httpx.AgentID(c, raw, "member "+raw)
			if !ok {
				return
			}
			members = append(members, id)
		}

		g, err := router.CreateGroup(c.Request.Context(), req.Name, owner, members)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, g)
	}
}

func listGroups(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.AgentID(c, c.Query("ax_id"), "ax_id")
		if !ok {
			return
		}
		groups, err := router.ListGroups(c.Request.Context(), id)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.EmptyIfNil(groups))
	}
}

func getGroup(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, err := router.GetGroup(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, g)
	}
}

type memberReq struct {
	AgentID string `json:"ax_id" binding:"required"`
}

func addMember(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req memberReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, ok := httpx.AgentID(c, req.AgentID, "ax_id")
		if !ok {
			return
		}
		if err := router.AddMember(c.Request.Context(), c.Param("id"), id); err != nil {
			httpx.Error(c, err)
			return
		}
		c.Status(http.StatusCreated)
	}
}

func removeMember(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.AgentID(c, c.Param("agentId"), "agentId")
		if !ok {
			return
		}
		if err := router.RemoveMember(c.Request.Context(), c.Param("id"), id); err != nil {
			httpx.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type sendReq struct {
	FromID      string               `json:"from_id" binding:"required"`
	Content     string               `json:"content"`
	ContentType envelope.ContentType `json:"content_type"`
	Payload     map[string]any       `json:"payload"`
}

func sendGroupMessage(router *messaging.Router) gin.HandlerFunc {
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

		d, err := router.SendGroup(c.Request.Context(), messaging.GroupSendInput{
			GroupID: c.Param("id"), From: from, Content: req.Content, ContentType: req.ContentType, Payload: req.Payload,
		})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	}
}

func groupHistory(router *messaging.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := httpx.Page(c)
		if !ok {
			return
		}
		msgs, err := router.GroupHistory(c.Request.Context(), c.Param("id"), page)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.EmptyIfNil(msgs))
	}
}
