package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8765", env.ListenAddr())
	assert.Equal(t, ".stagehand", env.StateDir)
	assert.Equal(t, 2*time.Second, env.MonitorInterval)
	assert.Equal(t, 5*time.Second, env.SweepInterval)
	assert.Equal(t, "local", env.StorageEnv.Type)
	assert.Equal(t, slog.LevelInfo, env.SlogLevel())
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("STAGEHAND_HTTP_PORT", "9000")
	t.Setenv("STAGEHAND_LOG_LEVEL", "debug")
	t.Setenv("STAGEHAND_MONITOR_INTERVAL", "250ms")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", env.ListenAddr())
	assert.Equal(t, slog.LevelDebug, env.SlogLevel())
	assert.Equal(t, 250*time.Millisecond, env.MonitorInterval)
}

func TestSlogLevel_BadValueFallsBack(t *testing.T) {
	e := &BaseEnv{LogLevel: "loud"}
	assert.Equal(t, slog.LevelInfo, e.SlogLevel())
}
