package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-job-worker/pkg/core"
	"github.com/jdziat/simple-job-worker/pkg/storage"
)

type testParams struct {
	X    int    `json:"x"`
	Name string `json:"name,omitempty"`
}

type testResult struct {
	Count int `json:"count"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRepository returns a repository backed by a migrated SQLite file.
func newTestRepository(t *testing.T, opts ...Option) *Repository[testParams, testResult] {
	t.Helper()
	db, err := storage.Open(storage.Config{
		Driver:      storage.DialectSQLite,
		DSN:         filepath.Join(t.TempDir(), "jobs.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New[testParams, testResult](storage.NewGormStorage(db), opts...)
}

// ──────────────────────────────────────────────────────────────────────────────
// AddJob
// ──────────────────────────────────────────────────────────────────────────────

func TestAddJob_DefaultsDueDateToNow(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newTestRepository(t, WithClock(func() time.Time { return fixed }))

	job, err := repo.AddJob(context.Background(), "import", time.Time{}, nil)
	require.NoError(t, err)

	assert.NotZero(t, job.ID)
	assert.Equal(t, core.StateRequested, job.State)
	assert.True(t, fixed.Equal(job.DueDate))
	assert.True(t, fixed.Equal(job.CreatedAt))
	assert.Nil(t, job.Parameters)
	assert.Nil(t, job.Job.Parameters)
}

func TestAddJob_StoresParameters(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	due := time.Now().Add(time.Hour)

	job, err := repo.AddJob(ctx, "import", due, &testParams{X: 7, Name: "feed"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":7,"name":"feed"}`, string(job.Job.Parameters))

	loaded, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.NotNil(t, loaded.Parameters)
	assert.Equal(t, testParams{X: 7, Name: "feed"}, *loaded.Parameters)
	assert.WithinDuration(t, due, loaded.DueDate, time.Millisecond)
}

func TestAddJob_InvalidType(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.AddJob(context.Background(), "", time.Time{}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = repo.AddJob(context.Background(), "has spaces", time.Time{}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidJobTypeName)
}

// ──────────────────────────────────────────────────────────────────────────────
// FindExistingJob
// ──────────────────────────────────────────────────────────────────────────────

func TestFindExistingJob_ParameterContainment(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	added, err := repo.AddJob(ctx, "t2", time.Time{}, &testParams{X: 1})
	require.NoError(t, err)

	found, err := repo.FindExistingJob(ctx, "t2", time.Time{}, &testParams{X: 1}, false)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, added.ID, found.ID)
	require.NotNil(t, found.Parameters)
	assert.Equal(t, 1, found.Parameters.X)

	missing, err := repo.FindExistingJob(ctx, "t2", time.Time{}, &testParams{X: 2}, false)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindExistingJob_RequiresFilter(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.FindExistingJob(context.Background(), "t2", time.Time{}, nil, false)
	assert.ErrorIs(t, err, core.ErrMissingFindFilter)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestFindExistingJob_ByDueDate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now()

	_, err := repo.AddJob(ctx, "nightly", now.Add(2*time.Hour), nil)
	require.NoError(t, err)

	found, err := repo.FindExistingJob(ctx, "nightly", now.Add(time.Hour), nil, true)
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = repo.FindExistingJob(ctx, "nightly", now.Add(3*time.Hour), nil, true)
	require.NoError(t, err)
	assert.NotNil(t, found)
}

// ──────────────────────────────────────────────────────────────────────────────
// GetAndStartFirstPendingJob / FinishJob / ResetJob
// ──────────────────────────────────────────────────────────────────────────────

func TestFinishJob_WithoutSuccessor(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.AddJob(ctx, "t1", time.Now(), nil)
	require.NoError(t, err)

	job, err := repo.GetAndStartFirstPendingJob(ctx, "t1", "test-runner")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, core.StateStarted, job.State)
	assert.Equal(t, "test-runner", job.RunnerName())

	require.NoError(t, repo.FinishJob(ctx, job, 0))

	assert.Equal(t, core.StateFinished, job.State)
	require.NotNil(t, job.ProcessingTimeMs)
	assert.Greater(t, *job.ProcessingTimeMs, uint32(0))

	requested, err := repo.CountJobs(ctx, "t1", core.StateRequested)
	require.NoError(t, err)
	assert.Zero(t, requested, "no successor must be created")

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StateFinished, stored.State)
	assert.Nil(t, stored.Runner)
	require.NotNil(t, stored.ProcessingTimeMs)
	assert.Greater(t, *stored.ProcessingTimeMs, uint32(0))
}

func TestFinishJob_StoresResultAndSchedulesSuccessor(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.AddJob(ctx, "sync", time.Now(), &testParams{X: 3})
	require.NoError(t, err)
	job, err := repo.GetAndStartFirstPendingJob(ctx, "sync", "runner-1")
	require.NoError(t, err)
	require.NotNil(t, job)

	job.Result = &testResult{Count: 42}
	before := time.Now()
	require.NoError(t, repo.FinishJob(ctx, job, time.Hour))

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Result)
	assert.Equal(t, 42, stored.Result.Count)

	successor, err := repo.FindExistingJob(ctx, "sync", before.Add(2*time.Hour), &testParams{X: 3}, false)
	require.NoError(t, err)
	require.NotNil(t, successor)
	assert.NotEqual(t, job.ID, successor.ID)
	assert.Equal(t, core.StateRequested, successor.State)
	assert.WithinDuration(t, before.Add(time.Hour), successor.DueDate, 5*time.Second)
	require.NotNil(t, successor.Parameters)
	assert.Equal(t, 3, successor.Parameters.X)
}

func TestFinishJob_NotStarted(t *testing.T) {
	repo := newTestRepository(t)
	job, err := repo.AddJob(context.Background(), "t1", time.Now(), nil)
	require.NoError(t, err)

	err = repo.FinishJob(context.Background(), job, 0)
	assert.ErrorIs(t, err, core.ErrJobNotOwned)
}

func TestGetAndStartFirstPendingJob_NoneDue(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.AddJob(ctx, "import", time.Now().Add(time.Hour), nil)
	require.NoError(t, err)

	job, err := repo.GetAndStartFirstPendingJob(ctx, "import", "runner-1")
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestResetJob_MakesJobClaimableAgain(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.AddJob(ctx, "import", time.Now(), &testParams{X: 1})
	require.NoError(t, err)
	job, err := repo.GetAndStartFirstPendingJob(ctx, "import", "runner-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, repo.AddProgress(ctx, job, 2, false))

	require.NoError(t, repo.ResetJob(ctx, job))
	assert.Equal(t, core.StateRequested, job.State)
	assert.Nil(t, job.Runner)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.SuccessfulItems)

	again, err := repo.GetAndStartFirstPendingJob(ctx, "import", "runner-2")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
	assert.Equal(t, "runner-2", again.RunnerName())
}

func TestGetAndStartFirstPendingJob_ReleasesUndecodableJob(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	bad := &core.Job{
		CreatedAt:  time.Now().UTC(),
		DueDate:    time.Now().UTC().Add(-time.Second),
		Type:       "import",
		State:      core.StateRequested,
		Parameters: []byte(`"not an object"`),
	}
	require.NoError(t, repo.Store().Insert(ctx, bad))

	job, err := repo.GetAndStartFirstPendingJob(ctx, "import", "runner-1")
	assert.NoError(t, err)
	assert.Nil(t, job)

	stored, err := repo.Store().GetJob(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StateRequested, stored.State)
	assert.Nil(t, stored.Runner)
}

// failingStore fails every claim with err.
type failingStore struct {
	core.Store
	err error
}

func (f *failingStore) ClaimNext(context.Context, string, string, time.Time) (*core.Job, error) {
	return nil, f.err
}

func TestGetAndStartFirstPendingJob_SwallowsClaimFailures(t *testing.T) {
	repo := New[testParams, testResult](&failingStore{err: errors.New("deadlock detected")}, WithLogger(quietLogger()))

	job, err := repo.GetAndStartFirstPendingJob(context.Background(), "import", "runner-1")
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestGetAndStartFirstPendingJob_PropagatesUncommittedChanges(t *testing.T) {
	repo := New[testParams, testResult](&failingStore{err: core.ErrUncommittedChanges}, WithLogger(quietLogger()))

	_, err := repo.GetAndStartFirstPendingJob(context.Background(), "import", "runner-1")
	assert.ErrorIs(t, err, core.ErrUncommittedChanges)
}

func TestGetAndStartFirstPendingJob_PropagatesCancellation(t *testing.T) {
	repo := New[testParams, testResult](&failingStore{err: errors.New("interrupted")}, WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetAndStartFirstPendingJob(ctx, "import", "runner-1")
	assert.ErrorIs(t, err, context.Canceled)
}

// ──────────────────────────────────────────────────────────────────────────────
// Progress
// ──────────────────────────────────────────────────────────────────────────────

func TestProgress_UpdatesJob(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.AddJob(ctx, "import", time.Now(), nil)
	require.NoError(t, err)
	job, err := repo.GetAndStartFirstPendingJob(ctx, "import", "runner-1")
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, repo.SetTotalItems(ctx, job, 5))
	require.NoError(t, repo.AddProgress(ctx, job, 3, false))
	require.NoError(t, repo.AddProgress(ctx, job, 1, true))

	total, ok, failed := job.Counters()
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, failed)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	total, ok, failed = stored.Counters()
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, failed)
}

func TestProgress_Validation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	job, err := repo.AddJob(ctx, "import", time.Now(), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, repo.AddProgress(ctx, job, 0, false), core.ErrInvalidItemCount)
	assert.ErrorIs(t, repo.SetTotalItems(ctx, job, -1), core.ErrInvalidItemCount)
}

func TestAddProgress_MissingJob(t *testing.T) {
	repo := newTestRepository(t)
	job := &Job[testParams, testResult]{Job: &core.Job{ID: 999}}

	err := repo.AddProgress(context.Background(), job, 1, false)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// CountJobs / DeleteJobs
// ──────────────────────────────────────────────────────────────────────────────

func TestDeleteJobs_RequiresFilter(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.DeleteJobs(context.Background(), "", "", time.Time{})
	assert.ErrorIs(t, err, core.ErrMissingDeleteFilter)
}

func TestDeleteJobs_FinishedOnly(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.AddJob(ctx, "import", time.Now(), nil)
	require.NoError(t, err)
	_, err = repo.AddJob(ctx, "import", time.Now().Add(time.Hour), nil)
	require.NoError(t, err)
	job, err := repo.GetAndStartFirstPendingJob(ctx, "import", "runner-1")
	require.NoError(t, err)
	require.NoError(t, repo.FinishJob(ctx, job, 0))

	deleted, err := repo.DeleteJobs(ctx, "import", core.StateFinished, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := repo.CountJobs(ctx, "import", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// ──────────────────────────────────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────────────────────────────────

func TestEvents_Lifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	events := repo.Events()
	defer repo.Unsubscribe(events)

	_, err := repo.AddJob(ctx, "import", time.Now(), nil)
	require.NoError(t, err)
	job, err := repo.GetAndStartFirstPendingJob(ctx, "import", "runner-1")
	require.NoError(t, err)
	require.NoError(t, repo.FinishJob(ctx, job, time.Hour))

	var kinds []string
	for len(events) > 0 {
		switch e := (<-events).(type) {
		case *core.JobAdded:
			kinds = append(kinds, "added")
		case *core.JobStarted:
			assert.Equal(t, "runner-1", e.Runner)
			kinds = append(kinds, "started")
		case *core.JobFinished:
			assert.NotNil(t, e.Successor)
			kinds = append(kinds, "finished")
		}
	}
	assert.Equal(t, []string{"added", "started", "finished", "added"}, kinds)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	repo := newTestRepository(t)
	events := repo.Events()
	repo.Unsubscribe(events)

	repo.Emit(&core.JobsDeleted{Type: "import"})
	assert.Len(t, events, 0)
}

func TestProcessingMillis(t *testing.T) {
	assert.Equal(t, uint32(1), processingMillis(0))
	assert.Equal(t, uint32(1), processingMillis(-time.Second))
	assert.Equal(t, uint32(1), processingMillis(300*time.Microsecond))
	assert.Equal(t, uint32(2), processingMillis(1500*time.Microsecond))
	assert.Equal(t, uint32(1000), processingMillis(time.Second))
}

func TestDeleteJobs_CutoffInOtherZoneKeepsRecentJobs(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.AddJob(ctx, "import", time.Now(), nil)
	require.NoError(t, err)
	job, err := repo.GetAndStartFirstPendingJob(ctx, "import", "runner-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, repo.FinishJob(ctx, job, 0))

	plusFive := time.FixedZone("PLUS5", 5*3600)
	deleted, err := repo.DeleteJobs(ctx, "import", core.StateFinished, time.Now().Add(-time.Hour).In(plusFive))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored, "job finished within the retention window must survive")

	deleted, err = repo.DeleteJobs(ctx, "import", core.StateFinished, time.Now().Add(time.Hour).In(plusFive))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
