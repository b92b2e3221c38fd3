package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecraft/stagehand/pkg/cerr"
)

func TestRegistry_SequentialIDs(t *testing.T) {
	r := NewRegistry(nil)

	a1 := r.Register("actor")
	a2 := r.Register("actor")
	d1 := r.Register("director")
	assert.Equal(t, "actor-0001", a1.ID())
	assert.Equal(t, "actor-0002", a2.ID())
	assert.Equal(t, "director-0001", d1.ID())

	// Freed numbers are reused, lowest first.
	require.NoError(t, r.Remove("actor-0001"))
	a3 := r.Register("actor")
	assert.Equal(t, "actor-0001", a3.ID())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Register("stagehand")

	err := r.Remove("stagehand-0099")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	require.True(t, a.Hold("TASK-1"))
	err = r.Remove(a.ID())
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	a.Release()
	require.NoError(t, r.Remove(a.ID()))
	_, exists := r.Get(a.ID())
	assert.False(t, exists)
	assert.Equal(t, StatusStopped, a.Status())
}

func TestRegistry_Lookups(t *testing.T) {
	r := NewRegistry(nil)
	a1 := r.Register("actor")
	a2 := r.Register("actor")
	r.Register("producer")

	assert.Len(t, r.AgentsByRole("actor"), 2)
	assert.Len(t, r.List(), 3)
	assert.Len(t, r.Available(), 3)

	require.True(t, a1.Hold("T"))
	got, ok := r.AgentByRole("actor")
	require.True(t, ok)
	assert.Equal(t, a2.ID(), got.ID())

	busy, idle := r.CountByStatus("actor")
	assert.Equal(t, 1, busy)
	assert.Equal(t, 1, idle)

	_, ok = r.AgentByRole("dramaturg")
	assert.False(t, ok)
}

func TestRegistry_ApplyRoster(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("actor")

	r.Apply(&Roster{Agents: []RoleConfig{
		{Role: "actor", Count: 3},
		{Role: "stage_manager", Count: 1},
	}})

	assert.Len(t, r.AgentsByRole("actor"), 3)
	assert.Len(t, r.AgentsByRole("stage_manager"), 1)

	// Applying again is a no-op.
	r.Apply(&Roster{Agents: []RoleConfig{{Role: "actor", Count: 3}}})
	assert.Len(t, r.AgentsByRole("actor"), 3)
}

type noopHandler struct{}

func (noopHandler) HandleTaskAssignment(ctx context.Context, notice *StartNotice) error {
	return nil
}

func TestRegistry_HandlerFactory(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterHandlerFactory("actor", func() AssignmentHandler {
		return noopHandler{}
	})

	a := r.Register("actor")
	assert.NotNil(t, a.Handler())

	b := r.Register("understudy")
	assert.Nil(t, b.Handler())
}
