// Package ws is the realtime channel: one websocket per agent session,
// {"event","data"} frames in both directions.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/event"
	"github.com/alanyang/agentlink/internal/service/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Presence is the slice of the presence registry a session drives.
type Presence interface {
	Connect(conn presence.Connection)
	Announce(ctx context.Context, conn presence.Connection, agentID domainagent.ID)
	AgentOf(conn presence.Connection) (domainagent.ID, bool)
	Release(ctx context.Context, conn presence.Connection) (domainagent.ID, bool)
	Count() int
}

// Handler upgrades requests and runs one Session per socket.
type Handler struct {
	presence   Presence
	svc        Services
	sendBuffer int
	logger     *slog.Logger
}

func NewHandler(p Presence, svc Services, sendBuffer int) *Handler {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Handler{
		presence:   p,
		svc:        svc,
		sendBuffer: sendBuffer,
		logger:     slog.Default().With("component", "ws"),
	}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.handleWS)
}

func (h *Handler) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s := newSession(conn, h.sendBuffer)
	ctx := context.WithoutCancel(c.Request.Context())
	h.presence.Connect(s)
	go s.writeLoop()

	defer func() {
		s.close()
		if agentID, ok := h.presence.Release(ctx, s); ok {
			h.logger.Info("agent disconnected", "agent_id", agentID, "session", s.id)
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug("websocket read ended", "session", s.id, "error", err)
			return
		}
		// Any message resets the read deadline.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var in frame
		if err := json.Unmarshal(msg, &in); err != nil {
			s.Notify(errorFrame("malformed frame"))
			continue
		}
		h.dispatch(ctx, s, in)
	}
}

// Session implements presence.Connection for one websocket.
// Frames are queued on a bounded buffer; a full buffer drops the frame.
type Session struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, buffer int) *Session {
	return &Session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Notify never blocks.
func (s *Session) Notify(ev any) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("websocket frame marshal failed", "error", err)
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.close()
				return
			}
		}
	}
}

var _ presence.Connection = (*Session)(nil)

// frame is the inbound wire shape.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func errorFrame(msg string) event.Push {
	return event.NewPush(event.PushError, map[string]string{"message": msg})
}
