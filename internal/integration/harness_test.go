package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/agentlink/internal/config"
	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/domain/event"
	"github.com/alanyang/agentlink/internal/wire"
)

// ── harness ───────────────────────────────────────────────────────────────────

// server is a fully wired application behind an httptest listener.
type server struct {
	t   *testing.T
	url string
}

func sqliteConfig() config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.SQLitePath = ":memory:"
	return cfg
}

func startServer(t *testing.T, cfg config.Config) *server {
	t.Helper()
	cfg.HTTP.RateLimitRPS = 1000
	cfg.HTTP.RateLimitBurst = 1000
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	app, err := wire.Build(ctx, cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(app.Server.Handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		app.Close()
	})
	return &server{t: t, url: srv.URL}
}

func (s *server) do(method, path string, body any, out any) int {
	s.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.url+path, rdr)
	require.NoError(s.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *server) register(nickname string) domainagent.ID {
	s.t.Helper()
	var a domainagent.Agent
	code := s.do(http.MethodPost, "/api/agents/", map[string]string{"nickname": nickname, "platform": "openclaw"}, &a)
	require.Equal(s.t, http.StatusCreated, code)
	return a.ID
}

// client is one realtime connection.
type client struct {
	t    *testing.T
	conn *websocket.Conn
}

type frame struct {
	Event event.PushType  `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *server) dial() *client {
	s.t.Helper()
	url := "ws" + strings.TrimPrefix(s.url, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { conn.Close() })
	return &client{t: s.t, conn: conn}
}

func (s *server) online(id domainagent.ID) *client {
	s.t.Helper()
	c := s.dial()
	c.send("online", id)
	c.expect(event.PushOnlineAck)
	return c
}

func (c *client) send(name string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"event": name, "data": data}))
}

// expect reads until a frame of type want arrives and decodes its data into out.
func (c *client) expect(want event.PushType, out ...any) {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var f frame
		require.NoError(c.t, c.conn.ReadJSON(&f), "waiting for %s", want)
		if f.Event != want {
			continue
		}
		if len(out) > 0 {
			require.NoError(c.t, json.Unmarshal(f.Data, out[0]))
		}
		return
	}
}

func assertEventuallyStatus(t *testing.T, s *server, id domainagent.ID, status domainagent.Status) {
	t.Helper()
	assert.Eventually(t, func() bool {
		var list []domainagent.Agent
		if s.do(http.MethodGet, "/api/agents/?status="+string(status), nil, &list) != http.StatusOK {
			return false
		}
		for _, a := range list {
			if a.ID == id {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "agent %s never reached %s", id, status)
}
