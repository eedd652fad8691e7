package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/AbdullahAlHarun-code/bdjobsapi/internal/errors"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/models"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/normalize"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/query"
)

func strPtr(s string) *string { return &s }

type tickingClock struct {
	t time.Time
}

func (c *tickingClock) Now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newTestStore() (*MemoryStore, *tickingClock) {
	clock := &tickingClock{t: time.Date(2025, 11, 15, 12, 0, 0, 0, time.UTC)}
	return NewMemoryStore(Options{
		Normalizer: normalize.New(time.UTC),
		Now:        clock.Now,
	}), clock
}

func TestMemoryStore_InsertAssignsIdentity(t *testing.T) {
	store, _ := newTestStore()

	job, err := store.Insert(context.Background(), &models.JobPosting{
		JobTitle: strPtr("Job 1"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)
}

func TestMemoryStore_UniqueKey(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	_, err := store.Insert(ctx, &models.JobPosting{JobURL: strPtr("https://example.com/1")})
	require.NoError(t, err)

	_, err = store.Insert(ctx, &models.JobPosting{JobURL: strPtr("https://example.com/1")})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDuplicate))

	// Keyless records never collide.
	_, err = store.Insert(ctx, &models.JobPosting{JobTitle: strPtr("a")})
	require.NoError(t, err)
	_, err = store.Insert(ctx, &models.JobPosting{JobTitle: strPtr("b")})
	require.NoError(t, err)
}

func TestMemoryStore_NormalizesOnWrite(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	// The store normalizes regardless of caller discipline.
	job, err := store.Insert(ctx, &models.JobPosting{
		JobTitle:  strPtr("  Messy   Title "),
		Vacancies: strPtr("n/a"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Messy Title", *job.JobTitle)
	assert.Nil(t, job.Vacancies)
}

func TestMemoryStore_UpdateKeepsCreatedAt(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	inserted, err := store.Insert(ctx, &models.JobPosting{
		JobTitle: strPtr("Before"),
		JobURL:   strPtr("https://example.com/1"),
	})
	require.NoError(t, err)

	updated, err := store.Update(ctx, inserted, models.JobPosting{
		JobTitle: strPtr("After"),
		JobURL:   strPtr("https://example.com/1"),
	})
	require.NoError(t, err)

	assert.Equal(t, inserted.ID, updated.ID)
	assert.Equal(t, inserted.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	assert.Equal(t, "After", *updated.JobTitle)
}

func TestMemoryStore_QueryOrdering(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Insert(ctx, &models.JobPosting{JobTitle: strPtr("job")})
		require.NoError(t, err)
	}

	jobs, err := store.Query(ctx, query.Filter{})
	require.NoError(t, err)
	require.Len(t, jobs, 5)
	for i := 1; i < len(jobs); i++ {
		assert.True(t, jobs[i-1].CreatedAt.After(jobs[i].CreatedAt),
			"records must be ordered newest first")
	}
}

func TestMemoryStore_Stats(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	_, err := store.Insert(ctx, &models.JobPosting{
		JobTitle:  strPtr("with extras"),
		Vacancies: strPtr("65"),
		Deadline:  strPtr("25 November 2025"),
	})
	require.NoError(t, err)
	_, err = store.Insert(ctx, &models.JobPosting{JobTitle: strPtr("bare")})
	require.NoError(t, err)

	at := clock.t
	stats, err := store.Stats(ctx, at)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalJobs)
	assert.Equal(t, int64(2), stats.Today)
	assert.Equal(t, int64(2), stats.ThisWeek)
	assert.Equal(t, int64(2), stats.ThisMonth)
	assert.Equal(t, int64(1), stats.WithVacancies)
	assert.Equal(t, int64(1), stats.WithDeadlines)
	require.NotNil(t, stats.LastUpdated)

	empty, _ := newTestStore()
	stats, err = empty.Stats(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalJobs)
	assert.Nil(t, stats.LastUpdated)
}
