package task

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYAMLRepository_Roundtrip(t *testing.T) {
	repo := NewYAMLRepository(filepath.Join(t.TempDir(), "tasks.yaml"))

	// Missing file is an empty task set, not an error.
	tasks, err := repo.Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)

	base := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	in := []*Task{
		{
			ID: "LATER", Name: "strike the set", Type: "general",
			Priority: PriorityLow, Queue: QueueSupport, Status: StatusPending,
			CreatedAt: base.Add(time.Hour),
		},
		{
			ID: "FIRST", Name: "light plot", Type: "design",
			Priority: PriorityHigh, Queue: QueueTechnical, Status: StatusCompleted,
			RequiredRoles: []string{"lighting_designer"},
			Deliverables:  []Deliverable{{Name: "plot", Description: "hang positions"}},
			QualityGates:  []QualityGate{{Name: "review"}},
			Results: Results{
				Deliverables: map[string]string{"plot": "assets/plot.pdf"},
				Gates:        map[string]string{"review": GatePassed},
			},
			Progress:  100,
			CreatedAt: base,
			StartedAt: base.Add(time.Minute),
		},
	}
	require.NoError(t, repo.Save(in))

	out, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Save orders by creation time.
	assert.Equal(t, "FIRST", out[0].ID)
	assert.Equal(t, PriorityHigh, out[0].Priority)
	assert.Equal(t, QueueTechnical, out[0].Queue)
	assert.Equal(t, StatusCompleted, out[0].Status)
	assert.Equal(t, "assets/plot.pdf", out[0].Results.Deliverables["plot"])
	assert.Equal(t, GatePassed, out[0].Results.Gates["review"])
	assert.True(t, out[0].CreatedAt.Equal(base))
	assert.Equal(t, "LATER", out[1].ID)
}
