package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagecraft/stagehand/pkg/cerr"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	base := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	rec := Record{
		TaskID:         "T1",
		Name:           "hang lights",
		Queue:          "technical",
		Outcome:        "completed",
		DurationMillis: 4200,
		CreatedAt:      base,
		FinishedAt:     base.Add(time.Hour),
	}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Outcome, got.Outcome)
	assert.Equal(t, rec.DurationMillis, got.DurationMillis)
	assert.True(t, got.FinishedAt.Equal(rec.FinishedAt))

	// Re-archiving the same task replaces the row.
	rec.Outcome = "failed"
	rec.Reason = "struck by scenery"
	require.NoError(t, s.Put(ctx, rec))
	got, err = s.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Outcome)
	assert.Equal(t, "struck by scenery", got.Reason)

	_, err = s.Get(ctx, "MISSING")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestStore_RecentAndStats(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	base := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	for i, rec := range []Record{
		{TaskID: "A", Name: "a", Queue: "support", Outcome: "completed", DurationMillis: 1000},
		{TaskID: "B", Name: "b", Queue: "support", Outcome: "completed", DurationMillis: 3000},
		{TaskID: "C", Name: "c", Queue: "creative", Outcome: "failed", Reason: "cancelled"},
	} {
		rec.CreatedAt = base
		rec.FinishedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Put(ctx, rec))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "C", recent[0].TaskID, "newest first")
	assert.Equal(t, "B", recent[1].TaskID)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, int64(2000), stats.AverageDurationMillis, "failed runs do not skew the average")
}
