package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	for label, want := range map[string]Priority{
		"":         PriorityMedium,
		"critical": PriorityCritical,
		"high":     PriorityHigh,
		"medium":   PriorityMedium,
		"low":      PriorityLow,
	} {
		got, err := ParsePriority(label)
		require.NoError(t, err, label)
		assert.Equal(t, want, got, label)
	}

	_, err := ParsePriority("urgent")
	assert.Error(t, err)
}

func TestContractMet(t *testing.T) {
	empty := &Task{}
	assert.True(t, empty.ContractMet(), "no contract is trivially satisfied")

	tk := &Task{
		Deliverables: []Deliverable{{Name: "plot"}},
		QualityGates: []QualityGate{{Name: "review"}},
	}
	assert.False(t, tk.ContractMet())

	tk.Results.Deliverables = map[string]string{"plot": "assets/plot"}
	assert.False(t, tk.ContractMet(), "gate still unresolved")

	tk.Results.Gates = map[string]string{"review": "failed"}
	assert.False(t, tk.ContractMet(), "only passed counts")

	tk.Results.Gates["review"] = GatePassed
	assert.True(t, tk.ContractMet())
}

func TestClone(t *testing.T) {
	orig := &Task{
		ID:           "T1",
		Dependencies: []string{"T0"},
		Blockers:     []Blocker{{Reason: "rain"}},
		Results: Results{
			Deliverables: map[string]string{"plot": "v1"},
		},
	}
	c := orig.Clone()
	c.Dependencies[0] = "X"
	c.Results.Deliverables["plot"] = "v2"
	c.Blockers[0].Reason = "snow"

	assert.Equal(t, "T0", orig.Dependencies[0])
	assert.Equal(t, "v1", orig.Results.Deliverables["plot"])
	assert.Equal(t, "rain", orig.Blockers[0].Reason)
}

func TestAddFeedbackAndCollaboration(t *testing.T) {
	ctx := context.Background()
	m, reg := testManager(t)
	reg.Register("actor")

	created, err := m.CreateTask(ctx, Definition{
		ID:            "FB",
		Name:          "notes session",
		RequiredRoles: []string{"actor"},
		Deliverables:  []Deliverable{{Name: "notes"}},
	})
	require.NoError(t, err)

	require.NoError(t, m.AddFeedback(ctx, created.ID, "pick up the pace in act two"))
	got, _ := m.Get(created.ID)
	assert.Equal(t, []string{"pick up the pace in act two"}, got.Feedback)

	space, ok := m.Collaboration(created.ID)
	require.True(t, ok)
	assert.Equal(t, "task.FB.collab", space.Channel)
	require.Len(t, space.Participants, 1)
	assert.Equal(t, "actor", space.Participants[0].Role)

	space.SetShared("scene", "II.3")
	v, ok := space.GetShared("scene")
	assert.True(t, ok)
	assert.Equal(t, "II.3", v)
	assert.Equal(t, map[string]string{"scene": "II.3"}, space.SharedSnapshot())
}
