// Package httpx holds the response and parameter helpers shared by the REST
// handlers.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domaincontact "github.com/alanyang/agentlink/internal/domain/contact"
	"github.com/alanyang/agentlink/internal/domain/envelope"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
	domaintask "github.com/alanyang/agentlink/internal/domain/task"
)

var badRequest = []error{
	domainagent.ErrInvalidID,
	domainagent.ErrInvalidRegion,
	domainagent.ErrInvalidKind,
	envelope.ErrInvalid,
	domainmessage.ErrEmptyContent,
	domainmessage.ErrNameRequired,
	domaintask.ErrInvalidPriority,
	domaintask.ErrTitleRequired,
	domaincontact.ErrSelf,
}

var notFound = []error{
	domainagent.ErrNotFound,
	domainmessage.ErrGroupNotFound,
	domaintask.ErrNotFound,
	domaincontact.ErrNotFound,
	domaincontact.ErrNoRequest,
}

var conflict = []error{
	domaintask.ErrInvalidTransition,
	domaintask.ErrStatusConflict,
	domaincontact.ErrAlreadyFriends,
	domaincontact.ErrRequestPending,
	domainmessage.ErrOwnerLeave,
}

// Status maps a service error onto an HTTP status code.
func Status(err error) int {
	switch {
	case matchAny(err, badRequest):
		return http.StatusBadRequest
	case errors.Is(err, domainmessage.ErrNotMember):
		return http.StatusForbidden
	case matchAny(err, notFound):
		return http.StatusNotFound
	case matchAny(err, conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func matchAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// Error writes {"error": ...} with the mapped status.
func Error(c *gin.Context, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// AgentID validates raw as an AX identifier. On failure it writes a 400 and
// returns false.
func AgentID(c *gin.Context, raw, field string) (domainagent.ID, bool) {
	id := domainagent.ID(raw)
	if _, err := domainagent.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + field})
		return "", false
	}
	return id, true
}

// Page reads limit and offset query parameters. Missing values fall back to
// the history defaults.
func Page(c *gin.Context) (domainmessage.Page, bool) {
	var p domainmessage.Page
	for _, f := range []struct {
		name string
		dst  *int
	}{{"limit", &p.Limit}, {"offset", &p.Offset}} {
		v := c.Query(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + f.name})
			return domainmessage.Page{}, false
		}
		*f.dst = n
	}
	return p.Normalize(), true
}

// EmptyIfNil keeps list endpoints returning [] instead of null.
func EmptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
