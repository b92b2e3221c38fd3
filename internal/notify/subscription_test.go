package notify

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecraft/stagehand/pkg/cerr"
)

func TestSubscriptionStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	s, err := NewSubscriptionStore(path)
	require.NoError(t, err)
	assert.Empty(t, s.List())

	sub, err := s.Add("https://push.example/ep1", "p256dh-key", "auth-key")
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)

	// Same endpoint replaces keys instead of duplicating.
	again, err := s.Add("https://push.example/ep1", "rotated", "auth-key-2")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, "rotated", again.P256dhKey)
	assert.Len(t, s.List(), 1)

	_, err = s.Add("https://push.example/ep2", "k", "a")
	require.NoError(t, err)

	// The store reloads from disk.
	reloaded, err := NewSubscriptionStore(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.List(), 2)

	require.NoError(t, reloaded.Delete(sub.ID))
	assert.Len(t, reloaded.List(), 1)
	err = reloaded.Delete(sub.ID)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
