package marketplace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/skygig/internal/apperr"
)

func TestToggleSaved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createJob(t, "poster-1", true)
	second := f.createJob(t, "poster-1", true)
	draft := f.createJob(t, "poster-1", false)

	saved, err := f.jobs.ToggleSaved(ctx, first.ID, "seeker-1")
	require.NoError(t, err)
	require.True(t, saved)
	f.clk.Advance(time.Minute)
	saved, err = f.jobs.ToggleSaved(ctx, second.ID, "seeker-1")
	require.NoError(t, err)
	require.True(t, saved)

	list := f.jobs.SavedJobs(ctx, "seeker-1")
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Empty(t, f.jobs.SavedJobs(ctx, "seeker-2"))

	saved, err = f.jobs.ToggleSaved(ctx, first.ID, "seeker-1")
	require.NoError(t, err)
	require.False(t, saved)
	require.Len(t, f.jobs.SavedJobs(ctx, "seeker-1"), 1)

	_, err = f.jobs.ToggleSaved(ctx, draft.ID, "seeker-1")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.jobs.ToggleSaved(ctx, "missing", "seeker-1")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSavedJobsDropDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.createJob(t, "poster-1", true)

	_, err := f.jobs.ToggleSaved(ctx, job.ID, "seeker-1")
	require.NoError(t, err)
	require.NoError(t, f.jobs.Delete(ctx, job.ID, "poster-1"))
	require.Empty(t, f.jobs.SavedJobs(ctx, "seeker-1"))

	// the stale bookmark can still be removed
	saved, err := f.jobs.ToggleSaved(ctx, job.ID, "seeker-1")
	require.NoError(t, err)
	require.False(t, saved)
}
