package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/AbdullahAlHarun-code/bdjobsapi/internal/errors"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/models"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/query"
)

// MemoryStore is an in-process JobStore used by tests and local runs
// without a database. It honors the same contracts as the durable
// backends, including the unique-key guarantee.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.JobPosting
	opts Options
}

func NewMemoryStore(opts Options) *MemoryStore {
	opts.defaults()
	return &MemoryStore{
		jobs: make(map[string]models.JobPosting),
		opts: opts,
	}
}

func (s *MemoryStore) FindByKey(ctx context.Context, key string) (*models.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByKeyLocked(key), nil
}

func (s *MemoryStore) findByKeyLocked(key string) *models.JobPosting {
	for _, j := range s.jobs {
		if j.JobURL != nil && *j.JobURL == key {
			job := j
			return &job
		}
	}
	return nil
}

func (s *MemoryStore) FindByComposite(ctx context.Context, company, title *string, scrapedAt *time.Time) (*models.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if ptrEq(j.CompanyName, company) && ptrEq(j.JobTitle, title) && timeEq(j.ScrapedAt, scrapedAt) {
			job := j
			return &job, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Insert(ctx context.Context, job *models.JobPosting) (*models.JobPosting, error) {
	s.opts.Normalizer.Record(job)

	s.mu.Lock()
	defer s.mu.Unlock()

	if job.JobURL != nil && s.findByKeyLocked(*job.JobURL) != nil {
		return nil, apperrors.Duplicate("job_url already exists", nil)
	}

	now := s.opts.Now()
	job.ID = uuid.NewString()
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = *job
	return job, nil
}

func (s *MemoryStore) Update(ctx context.Context, existing *models.JobPosting, fields models.JobPosting) (*models.JobPosting, error) {
	s.opts.Normalizer.Record(&fields)
	fields.ID = existing.ID
	fields.CreatedAt = existing.CreatedAt
	fields.UpdatedAt = s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[fields.ID] = fields
	return &fields, nil
}

func (s *MemoryStore) Query(ctx context.Context, f query.Filter) ([]models.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []models.JobPosting{}
	for _, j := range s.jobs {
		if query.Matches(j, f) {
			matched = append(matched, j)
		}
	}
	sort.Slice(matched, func(i, k int) bool {
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})
	return matched, nil
}

func (s *MemoryStore) Count(ctx context.Context, f query.Filter) (int64, error) {
	jobs, err := s.Query(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(jobs)), nil
}

func (s *MemoryStore) Stats(ctx context.Context, at time.Time) (*models.Stats, error) {
	jobs, err := s.Query(ctx, query.Filter{})
	if err != nil {
		return nil, err
	}
	return statsFromJobs(jobs, at), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// statsFromJobs derives aggregate counts from an already-sorted
// (newest first) record list.
func statsFromJobs(jobs []models.JobPosting, at time.Time) *models.Stats {
	st := &models.Stats{TotalJobs: int64(len(jobs))}

	today := query.Today(at, at.Location())
	week := query.LastWeek(at)
	month := query.ThisMonth(at, at.Location())

	for _, j := range jobs {
		if query.Matches(j, today) {
			st.Today++
		}
		if query.Matches(j, week) {
			st.ThisWeek++
		}
		if query.Matches(j, month) {
			st.ThisMonth++
		}
		if j.Vacancies != nil {
			st.WithVacancies++
		}
		if j.Deadline != nil {
			st.WithDeadlines++
		}
	}
	if len(jobs) > 0 {
		st.LastUpdated = &jobs[0].CreatedAt
	}
	return st
}
