package tracker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestUpdateAndGetStatus(t *testing.T) {
	tr := openTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.UpdateStatus(ctx, "story-042", StatusInProgress, "implementing"))

	rec, err := tr.GetStatus(ctx, "story-042")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, "implementing", rec.Detail)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestUpdateStatusUpserts(t *testing.T) {
	tr := openTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.UpdateStatus(ctx, "story-042", StatusInProgress, ""))
	require.NoError(t, tr.UpdateStatus(ctx, "story-042", StatusReview, "awaiting review"))
	require.NoError(t, tr.UpdateStatus(ctx, "story-042", StatusDone, ""))

	rec, err := tr.GetStatus(ctx, "story-042")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rec.Status)

	all, err := tr.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetStatusUntracked(t *testing.T) {
	tr := openTracker(t)

	rec, err := tr.GetStatus(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpdateStatusValidation(t *testing.T) {
	tr := openTracker(t)
	ctx := context.Background()

	assert.Error(t, tr.UpdateStatus(ctx, "", StatusDone, ""))
	assert.Error(t, tr.UpdateStatus(ctx, "story-042", "half-done", ""))
}

func TestListFiltersByStatus(t *testing.T) {
	tr := openTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.UpdateStatus(ctx, "story-001", StatusDone, ""))
	require.NoError(t, tr.UpdateStatus(ctx, "story-002", StatusEscalated, "needs human"))
	require.NoError(t, tr.UpdateStatus(ctx, "story-003", StatusDone, ""))

	done, err := tr.List(ctx, StatusDone)
	require.NoError(t, err)
	assert.Len(t, done, 2)

	escalated, err := tr.List(ctx, StatusEscalated)
	require.NoError(t, err)
	require.Len(t, escalated, 1)
	assert.Equal(t, "story-002", escalated[0].StoryID)
}

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sprint.db")

	tr, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, tr.UpdateStatus(context.Background(), "story-001", StatusPending, ""))
	require.NoError(t, tr.Close())

	// Reopen and verify the row survived.
	tr2, err := Open(path)
	require.NoError(t, err)
	defer tr2.Close()

	rec, err := tr2.GetStatus(context.Background(), "story-001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusPending, rec.Status)
}
