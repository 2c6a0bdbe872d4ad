package agent

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	agentsvc "github.com/alanyang/agentlink/internal/service/agent"
	"github.com/alanyang/agentlink/internal/transport/httpx"
)

// Presence is the slice of the presence registry these handlers read.
type Presence interface {
	Online() []domainagent.ID
	IsOnline(id domainagent.ID) bool
}

func Register(rg *gin.RouterGroup, svc *agentsvc.Service, presence Presence) {
	rg.POST("/", registerAgent(svc))
	rg.POST("/ids", issueID(svc))
	rg.GET("/", listAgents(svc))
	rg.GET("/online", listOnline(presence))
	rg.GET("/:id", getAgent(svc, presence))
}

type registerReq struct {
	Nickname string           `json:"nickname" binding:"required"`
	Kind     domainagent.Kind `json:"type"`
	Platform string           `json:"platform"`
	Region   string           `json:"region"`
	Bio      string           `json:"bio"`
}

func registerAgent(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Kind != "" && !req.Kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type must be personal or skill"})
			return
		}

		a, err := svc.Register(c.Request.Context(), agentsvc.RegisterInput{
			Nickname: req.Nickname,
			Kind:     req.Kind,
			Platform: req.Platform,
			Region:   req.Region,
			Bio:      req.Bio,
		})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	}
}

type issueReq struct {
	Kind   domainagent.Kind `json:"type"`
	Region string           `json:"region"`
}

// issueID hands out an unused id without creating a profile.
func issueID(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req issueReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Kind == "" {
			req.Kind = domainagent.KindPersonal
		}
		if !req.Kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type must be personal or skill"})
			return
		}
		region, err := domainagent.NormalizeRegion(req.Region)
		if err != nil {
			httpx.Error(c, err)
			return
		}

		id, err := svc.IssueID(c.Request.Context(), req.Kind, region)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ax_id": id})
	}
}

func listAgents(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filters domainagent.ListFilters

		if v := c.Query("type"); v != "" {
			k := domainagent.Kind(v)
			if !k.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
				return
			}
			filters.Kind = &k
		}
		if v := c.Query("status"); v != "" {
			s := domainagent.Status(v)
			filters.Status = &s
		}
		filters.Platform = c.Query("platform")
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			filters.Limit = n
		}

		agents, err := svc.List(c.Request.Context(), filters)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.EmptyIfNil(agents))
	}
}

func listOnline(presence Presence) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids := presence.Online()
		c.JSON(http.StatusOK, gin.H{"online": httpx.EmptyIfNil(ids), "count": len(ids)})
	}
}

// getAgent reports live reachability in status, which can run ahead of the
// persisted value while the offline grace period is pending.
func getAgent(svc *agentsvc.Service, presence Presence) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.AgentID(c, c.Param("id"), "id")
		if !ok {
			return
		}

		a, err := svc.GetByID(c.Request.Context(), id)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		if presence.IsOnline(a.ID) {
			a.Status = domainagent.StatusOnline
		} else {
			a.Status = domainagent.StatusOffline
		}
		c.JSON(http.StatusOK, a)
	}
}
