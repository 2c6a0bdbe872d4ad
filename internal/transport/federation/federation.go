package federation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alanyang/agentlink/internal/domain/envelope"
	fedsvc "github.com/alanyang/agentlink/internal/service/federation"
	"github.com/alanyang/agentlink/internal/transport/httpx"
)

// Register mounts the federation endpoints. auth guards inbound only; the
// protocol description and validator are public.
func Register(rg *gin.RouterGroup, gw *fedsvc.Gateway, auth gin.HandlerFunc) {
	rg.GET("/protocol", protocol)
	rg.POST("/validate", validate)
	rg.POST("/inbound", auth, inbound(gw))
}

func protocol(c *gin.Context) {
	c.JSON(http.StatusOK, envelope.Describe())
}

// validate always answers 200 with {valid, reason} unless the body is not JSON.
func validate(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := envelope.Decode(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, envelope.Validate(p))
}

func inbound(gw *fedsvc.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, err := envelope.Decode(raw)
		if err != nil {
			httpx.Error(c, err)
			return
		}

		res, err := gw.Dispatch(c.Request.Context(), p)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusAccepted, res)
	}
}
