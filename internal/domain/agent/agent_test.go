package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/agentlink/internal/domain/agent"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		id      agent.ID
		want    agent.Parsed
		wantErr bool
	}{
		{"personal", "AX-U-CN-0042", agent.Parsed{Kind: agent.KindPersonal, Region: "CN", Number: 42}, false},
		{"skill", "AX-S-US-9999", agent.Parsed{Kind: agent.KindSkill, Region: "US", Number: 9999}, false},
		{"lowercase region", "AX-U-cn-0042", agent.Parsed{}, true},
		{"short suffix", "AX-U-CN-042", agent.Parsed{}, true},
		{"bad kind", "AX-X-CN-0042", agent.Parsed{}, true},
		{"empty", "", agent.Parsed{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := agent.Parse(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, agent.ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRegion(t *testing.T) {
	r, err := agent.NormalizeRegion("")
	require.NoError(t, err)
	assert.Equal(t, "CN", r)

	r, err = agent.NormalizeRegion("jp")
	require.NoError(t, err)
	assert.Equal(t, "JP", r)

	_, err = agent.NormalizeRegion("USA")
	assert.ErrorIs(t, err, agent.ErrInvalidRegion)
	_, err = agent.NormalizeRegion("1A")
	assert.ErrorIs(t, err, agent.ErrInvalidRegion)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, agent.ID("AX-S-DE-0007"), agent.Format(agent.KindSkill, "DE", 7))
	assert.Equal(t, agent.ID("AX-U-CN-0001"), agent.Format(agent.KindPersonal, "CN", 10001))
}

func TestDisplayName(t *testing.T) {
	a := agent.New("AX-U-CN-0001", agent.KindPersonal, "", "", "CN", "")
	assert.Equal(t, "AX-U-CN-0001", a.DisplayName())
	assert.Equal(t, "generic", a.Platform)
	assert.Equal(t, agent.StatusOffline, a.Status)
	a.Nickname = "Lobster"
	assert.Equal(t, "Lobster", a.DisplayName())
}
