package jobctx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-job-worker/pkg/core"
	intctx "github.com/jdziat/simple-job-worker/pkg/internal/context"
)

type recorder struct {
	total       int
	successful  int
	failed      int
	progressErr error
}

func (r *recorder) context(job *core.Job) context.Context {
	return intctx.WithJobContext(context.Background(), &intctx.JobContext{
		Job:    job,
		Runner: "runner-1",
		SetTotalItems: func(_ context.Context, total int) error {
			r.total = total
			return nil
		},
		AddProgress: func(_ context.Context, items int, failed bool) error {
			if r.progressErr != nil {
				return r.progressErr
			}
			if failed {
				r.failed += items
			} else {
				r.successful += items
			}
			return nil
		},
	})
}

func TestJobFromContext(t *testing.T) {
	t.Run("returns job when set in context", func(t *testing.T) {
		rec := &recorder{}
		ctx := rec.context(&core.Job{ID: 123, Type: "import"})

		job := JobFromContext(ctx)
		require.NotNil(t, job)
		assert.Equal(t, int64(123), job.ID)
		assert.Equal(t, "import", job.Type)
		assert.Equal(t, int64(123), JobIDFromContext(ctx))
		assert.Equal(t, "runner-1", RunnerFromContext(ctx))
	})

	t.Run("returns zero values when not set in context", func(t *testing.T) {
		ctx := context.Background()

		assert.Nil(t, JobFromContext(ctx))
		assert.Zero(t, JobIDFromContext(ctx))
		assert.Empty(t, RunnerFromContext(ctx))
	})
}

func TestProgressHelpers(t *testing.T) {
	rec := &recorder{}
	ctx := rec.context(&core.Job{ID: 1})

	require.NoError(t, SetTotalItems(ctx, 10))
	require.NoError(t, AddProgress(ctx, 3))
	require.NoError(t, AddProgress(ctx, 2))
	require.NoError(t, AddFailedProgress(ctx, 1))

	assert.Equal(t, 10, rec.total)
	assert.Equal(t, 5, rec.successful)
	assert.Equal(t, 1, rec.failed)
}

func TestProgressHelpers_PropagateErrors(t *testing.T) {
	rec := &recorder{progressErr: core.ErrJobNotFound}
	ctx := rec.context(&core.Job{ID: 1})

	assert.ErrorIs(t, AddProgress(ctx, 1), core.ErrJobNotFound)
}

func TestProgressHelpers_NoCurrentJob(t *testing.T) {
	ctx := context.Background()

	assert.True(t, errors.Is(SetTotalItems(ctx, 1), core.ErrNoCurrentJob))
	assert.True(t, errors.Is(AddProgress(ctx, 1), core.ErrNoCurrentJob))
	assert.True(t, errors.Is(AddFailedProgress(ctx, 1), core.ErrNoCurrentJob))
}
