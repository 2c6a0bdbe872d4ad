package task_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyang/agentlink/internal/domain/task"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to task.Status
		want     bool
	}{
		{task.StatusPending, task.StatusInProgress, true},
		{task.StatusPending, task.StatusRejected, true},
		{task.StatusPending, task.StatusCompleted, false},
		{task.StatusInProgress, task.StatusCompleted, true},
		{task.StatusInProgress, task.StatusRejected, true},
		{task.StatusInProgress, task.StatusPending, false},
		{task.StatusInProgress, task.StatusInProgress, false},
		{task.StatusCompleted, task.StatusRejected, false},
		{task.StatusCompleted, task.StatusInProgress, false},
		{task.StatusRejected, task.StatusCompleted, false},
		{task.StatusRejected, task.StatusInProgress, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, task.StatusPending.IsTerminal())
	assert.False(t, task.StatusInProgress.IsTerminal())
	assert.True(t, task.StatusCompleted.IsTerminal())
	assert.True(t, task.StatusRejected.IsTerminal())
}

func TestNew(t *testing.T) {
	tk := task.New("AX-U-CN-0001", "AX-S-CN-0002", "summarize", "", nil, "", nil)
	assert.Regexp(t, `^task_[0-9a-f]{8}$`, tk.ID)
	assert.Equal(t, task.StatusPending, tk.Status)
	assert.Equal(t, task.PriorityNormal, tk.Priority)
	assert.NotNil(t, tk.Input)
	assert.NotNil(t, tk.Output)
}

func TestParsePriority(t *testing.T) {
	p, err := task.ParsePriority("")
	assert.NoError(t, err)
	assert.Equal(t, task.PriorityNormal, p)

	p, err = task.ParsePriority("HIGH")
	assert.NoError(t, err)
	assert.Equal(t, task.PriorityHigh, p)

	_, err = task.ParsePriority("critical")
	assert.ErrorIs(t, err, task.ErrInvalidPriority)
}
