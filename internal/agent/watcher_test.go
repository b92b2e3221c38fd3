package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  - role: actor\n    count: 1\n"), 0o644))

	reg := NewRegistry(nil)
	reloaded := make(chan *Roster, 1)
	w := NewRosterWatcher(path, reg, func(r *Roster) {
		reloaded <- r
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to attach before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  - role: actor\n    count: 2\n"), 0o644))

	select {
	case roster := <-reloaded:
		require.Len(t, roster.Agents, 1)
		assert.Equal(t, 2, roster.Agents[0].Count)
	case <-time.After(2 * time.Second):
		t.Fatal("roster change was not picked up")
	}
	assert.Len(t, reg.AgentsByRole("actor"), 2)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRosterWatcher_KeepsPreviousOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  - role: actor\n    count: 1\n"), 0o644))

	reg := NewRegistry(nil)
	reg.Apply(&Roster{Agents: []RoleConfig{{Role: "actor", Count: 1}}})

	w := NewRosterWatcher(path, reg, nil)

	// Invalid YAML is logged and skipped; the registry is untouched.
	require.NoError(t, os.WriteFile(path, []byte("agents: {broken"), 0o644))
	w.reload(context.Background())
	assert.Len(t, reg.AgentsByRole("actor"), 1)
}
