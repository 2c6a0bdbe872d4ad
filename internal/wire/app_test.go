package wire

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/agentlink/internal/config"
)

func buildTestApp(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.SQLitePath = ":memory:"
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	app, err := Build(ctx, cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(app.Server.Handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		app.Close()
	})
	return srv
}

func TestBuild_SQLiteServesAPI(t *testing.T) {
	srv := buildTestApp(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 0, health["online"])

	reg, err := http.Post(srv.URL+"/api/agents/", "application/json",
		strings.NewReader(`{"nickname":"alice","platform":"openclaw"}`))
	require.NoError(t, err)
	defer reg.Body.Close()
	assert.Equal(t, http.StatusCreated, reg.StatusCode)
	var agent map[string]any
	require.NoError(t, json.NewDecoder(reg.Body).Decode(&agent))
	assert.Regexp(t, `^AX-U-CN-\d{4}$`, agent["ax_id"])
}

func TestBuild_MetricsEndpoint(t *testing.T) {
	srv := buildTestApp(t, nil)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "agentlink_http_requests_total")
}

func TestBuild_MetricsDisabled(t *testing.T) {
	srv := buildTestApp(t, func(c *config.Config) { c.Metrics.Enabled = false })

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
