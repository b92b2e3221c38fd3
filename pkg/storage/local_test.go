package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	path := AssetPath("T1", "light_plot")
	assert.Equal(t, "tasks/T1/deliverables/light_plot", path)
	assert.Equal(t, "local://tasks/T1/deliverables/light_plot", s.Ref(path))

	exists, err := s.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.Read(ctx, path)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Write(ctx, path, []byte("plot v1")))
	data, err := s.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "plot v1", string(data))

	exists, err = s.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, exists)

	// Overwrite is atomic from the reader's point of view.
	require.NoError(t, s.Write(ctx, path, []byte("plot v2")))
	data, err = s.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "plot v2", string(data))

	require.NoError(t, s.Write(ctx, AssetPath("T1", "cue_sheet"), []byte("cues")))
	paths, err := s.List(ctx, "tasks/T1/deliverables")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"tasks/T1/deliverables/light_plot",
		"tasks/T1/deliverables/cue_sheet",
	}, paths)

	require.NoError(t, s.Delete(ctx, path))
	err = s.Delete(ctx, path)
	assert.True(t, errors.Is(err, ErrNotFound))

	paths, err = s.List(ctx, "tasks/none")
	require.NoError(t, err)
	assert.Empty(t, paths)
}
