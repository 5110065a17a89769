package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/profiles"
)

type fakeRunner struct {
	outcomes []profiles.Outcome
	err      error
	gotPar   int
}

func (f *fakeRunner) RunAll(_ context.Context, _ []config.Profile, parallelism int) ([]profiles.Outcome, error) {
	f.gotPar = parallelism
	return f.outcomes, f.err
}

type fakeRecorder struct {
	ok  map[string]bool
	was time.Time
}

func (f *fakeRecorder) ObserveScheduledRun(profile string, ok bool, at time.Time) {
	if f.ok == nil {
		f.ok = map[string]bool{}
	}
	f.ok[profile] = ok
	f.was = at
}

func TestOptimizeProfilesJob(t *testing.T) {
	someProfiles := []config.Profile{{Name: "a"}, {Name: "b"}}

	t.Run("partial failure succeeds", func(t *testing.T) {
		runner := &fakeRunner{outcomes: []profiles.Outcome{
			{Profile: "a", RunID: "1"},
			{Profile: "b", Err: errors.New("no history")},
		}}
		recorder := &fakeRecorder{}
		job := NewOptimizeProfilesJob(runner, someProfiles, 3, recorder, zerolog.Nop())

		require.NoError(t, job.Run(context.Background()))
		assert.Equal(t, 3, runner.gotPar)
		assert.Equal(t, map[string]bool{"a": true, "b": false}, recorder.ok)
		assert.False(t, recorder.was.IsZero())
	})

	t.Run("all failed", func(t *testing.T) {
		runner := &fakeRunner{outcomes: []profiles.Outcome{
			{Profile: "a", Err: errors.New("x")},
			{Profile: "b", Err: errors.New("y")},
		}}
		job := NewOptimizeProfilesJob(runner, someProfiles, 1, nil, zerolog.Nop())
		assert.ErrorContains(t, job.Run(context.Background()), "all 2 profile runs failed")
	})

	t.Run("aborted", func(t *testing.T) {
		runner := &fakeRunner{err: context.Canceled}
		job := NewOptimizeProfilesJob(runner, someProfiles, 1, nil, zerolog.Nop())
		assert.ErrorIs(t, job.Run(context.Background()), context.Canceled)
	})

	t.Run("no profiles", func(t *testing.T) {
		job := NewOptimizeProfilesJob(&fakeRunner{}, nil, 1, nil, zerolog.Nop())
		assert.NoError(t, job.Run(context.Background()))
		assert.Equal(t, "optimize_profiles", job.Name())
	})
}

type fakePruner struct {
	cutoff time.Time
}

func (f *fakePruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 4, nil
}

func TestMaintenanceJob(t *testing.T) {
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "runs.db"), Name: "runs"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	defer db.Close()

	pruner := &fakePruner{}
	job := NewMaintenanceJob(pruner, 30, []*database.DB{db, nil}, zerolog.Nop())
	fixed := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), pruner.cutoff)
	assert.Equal(t, "maintenance", job.Name())
}

func TestMaintenanceJob_KeepsRunsWithoutRetention(t *testing.T) {
	pruner := &fakePruner{}
	job := NewMaintenanceJob(pruner, 0, nil, zerolog.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, pruner.cutoff.IsZero())
}
