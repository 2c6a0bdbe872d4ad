package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/agentlink/internal/transport/auth"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("FEDERATION_JWT_SECRET", "s3cret")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--platform", "openclaw"})
	require.NoError(t, cmd.Execute())

	platform, err := auth.NewSigner("s3cret", "agentlink", 0).Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "openclaw", platform)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	t.Setenv("FEDERATION_JWT_SECRET", "")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"token", "--platform", "openclaw"})
	assert.ErrorContains(t, cmd.Execute(), "jwt_secret")
}

func TestMigrateCommand_SQLite(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", ":memory:")

	up := newRootCmd()
	up.SetArgs([]string{"migrate", "up"})
	require.NoError(t, up.Execute())

	down := newRootCmd()
	down.SetArgs([]string{"migrate", "down"})
	assert.ErrorContains(t, down.Execute(), "not supported")
}
