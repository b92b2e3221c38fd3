package event

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHookExecutor_RejectsBadSyntax(t *testing.T) {
	_, err := NewHookExecutor([]Hook{
		{Name: "broken", Event: TaskCompleted, Command: "echo 'unterminated"},
	})
	assert.Error(t, err)

	_, err = NewHookExecutor([]Hook{
		{Name: "fine", Event: TaskCompleted, Command: "echo done"},
	})
	assert.NoError(t, err)
}

func TestHookExecutor_RunsMatchingHooks(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fired")
	executor, err := NewHookExecutor([]Hook{
		{Name: "on-complete", Event: TaskCompleted, Command: "echo \"$STAGEHAND_EVENT_TYPE\" > " + out},
		{Name: "on-fail", Event: TaskFailed, Command: "echo never > " + out + ".wrong"},
	})
	require.NoError(t, err)

	data, _ := json.Marshal(TaskCompletedData{TaskID: "T1"})
	require.NoError(t, executor.Execute(context.Background(), &EventMessage{
		ID:        "01J",
		Type:      TaskCompleted,
		Timestamp: time.Now(),
		Source:    "scheduler",
		Data:      data,
	}))

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "task.completed\n", string(body))

	_, err = os.Stat(out + ".wrong")
	assert.True(t, os.IsNotExist(err), "non-matching hook must not run")
}
