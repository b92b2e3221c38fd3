package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferEventType(t *testing.T) {
	assert.Equal(t, TaskCreated, inferEventType(TaskCreatedData{}))
	assert.Equal(t, TaskCompleted, inferEventType(&TaskCompletedData{}))
	assert.Equal(t, AgentReleased, inferEventType(AgentReleasedData{}))

	// Unknown payloads fall back to a dotted name.
	type CurtainCallData struct{}
	assert.Equal(t, EventType("curtain.call"), inferEventType(CurtainCallData{}))
}

func TestTaskTopic(t *testing.T) {
	assert.Equal(t, "task.T1.collab", TaskTopic("T1"))
}

func TestEventMessageRoundtrip(t *testing.T) {
	ev := NewEvent("scheduler", TaskFailedData{TaskID: "T1", Name: "strike", Reason: "cancelled"})
	ev.Timestamp = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

	msg, err := ev.ToMessage()
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, msg.Type)
	assert.Equal(t, ev.ID, msg.ID)

	back, err := FromMessage[TaskFailedData](msg)
	require.NoError(t, err)
	assert.Equal(t, ev.Data, back.Data)
	assert.True(t, ev.Timestamp.Equal(back.Timestamp))
}
