// Package ingest implements the normalization + dedup/upsert pipeline
// that sits between the HTTP boundary and the job store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/AbdullahAlHarun-code/bdjobsapi/internal/errors"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/models"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/normalize"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/storage"
)

// Strategy selects how the engine treats a record matching an existing
// one. The two producers feeding this service expect different
// behavior, so the choice is an explicit per-domain parameter.
type Strategy string

const (
	// StrategyOverwrite updates the existing record in place when the
	// identity key matches; records without a key always insert.
	StrategyOverwrite Strategy = "overwrite"
	// StrategySkipDuplicate discards an incoming record when either the
	// key or the (company, title, scraped_at) tuple matches. The stored
	// record is never touched.
	StrategySkipDuplicate Strategy = "skip"
)

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyOverwrite, StrategySkipDuplicate:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown dedup strategy: %q", s)
	}
}

// OutcomeKind classifies what the engine did with one record.
type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota
	OutcomeUpdated
	OutcomeSkipped
	OutcomeRejected
)

// Outcome is the per-record result.
type Outcome struct {
	Kind   OutcomeKind
	Job    *models.JobPosting
	Reason string // set for Skipped and Rejected
}

// Engine deduplicates and persists normalized job records.
type Engine struct {
	store      storage.JobStore
	normalizer *normalize.Normalizer
	strategy   Strategy
	validate   *validator.Validate
	logger     *zap.Logger
}

func NewEngine(store storage.JobStore, n *normalize.Normalizer, strategy Strategy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      store,
		normalizer: n,
		strategy:   strategy,
		validate:   validator.New(),
		logger:     logger,
	}
}

// Process runs one already-decoded submission through validation,
// normalization and the configured dedup strategy. Store failures are
// returned as the error; everything else is expressed in the Outcome.
func (e *Engine) Process(ctx context.Context, sub models.JobSubmission) (Outcome, error) {
	if err := e.validate.Struct(sub); err != nil {
		return Outcome{Kind: OutcomeRejected, Reason: err.Error()}, nil
	}

	job := e.normalizer.Submission(sub)
	for _, u := range []*string{job.JobURL, job.CompanyLogoURL} {
		if u != nil && !normalize.IsURL(*u) {
			e.logger.Debug("keeping structurally invalid URL", zap.String("url", *u))
		}
	}

	switch e.strategy {
	case StrategySkipDuplicate:
		return e.processSkip(ctx, job)
	default:
		return e.processOverwrite(ctx, job)
	}
}

func (e *Engine) processOverwrite(ctx context.Context, job models.JobPosting) (Outcome, error) {
	if job.JobURL != nil {
		existing, err := e.store.FindByKey(ctx, *job.JobURL)
		if err != nil {
			return Outcome{}, err
		}
		if existing != nil {
			updated, err := e.store.Update(ctx, existing, job)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Kind: OutcomeUpdated, Job: updated}, nil
		}
	}

	created, err := e.store.Insert(ctx, &job)
	if err == nil {
		return Outcome{Kind: OutcomeCreated, Job: created}, nil
	}

	// A concurrent insert of the same key can land between the lookup
	// and the insert; the store's unique constraint reports it. Retry
	// as an update, consistent with the overwrite contract.
	if apperrors.IsType(err, apperrors.ErrTypeDuplicate) && job.JobURL != nil {
		existing, findErr := e.store.FindByKey(ctx, *job.JobURL)
		if findErr == nil && existing != nil {
			updated, updErr := e.store.Update(ctx, existing, job)
			if updErr == nil {
				return Outcome{Kind: OutcomeUpdated, Job: updated}, nil
			}
			return Outcome{}, updErr
		}
	}
	return Outcome{}, err
}

func (e *Engine) processSkip(ctx context.Context, job models.JobPosting) (Outcome, error) {
	var existing *models.JobPosting
	var err error
	if job.JobURL != nil {
		existing, err = e.store.FindByKey(ctx, *job.JobURL)
	} else {
		existing, err = e.store.FindByComposite(ctx, job.CompanyName, job.JobTitle, job.ScrapedAt)
	}
	if err != nil {
		return Outcome{}, err
	}
	if existing != nil {
		return Outcome{Kind: OutcomeSkipped, Reason: "duplicate"}, nil
	}

	created, err := e.store.Insert(ctx, &job)
	if err != nil {
		// Lost an insert race; under the skip policy the stored record
		// stays untouched, so this is a plain duplicate.
		if apperrors.IsType(err, apperrors.ErrTypeDuplicate) {
			return Outcome{Kind: OutcomeSkipped, Reason: "duplicate"}, nil
		}
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeCreated, Job: created}, nil
}

// ProcessBatch decodes and processes each element independently and in
// order; one bad element never aborts the rest.
func (e *Engine) ProcessBatch(ctx context.Context, raw []json.RawMessage) models.BatchResult {
	result := models.BatchResult{
		Created: []models.JobPosting{},
		Updated: []models.JobPosting{},
		Skipped: []models.SkippedItem{},
	}

	for i, item := range raw {
		var sub models.JobSubmission
		if err := json.Unmarshal(item, &sub); err != nil {
			result.Errors = append(result.Errors, models.SubmissionError{
				Index: i, Error: fmt.Sprintf("invalid record: %v", err),
			})
			continue
		}

		outcome, err := e.Process(ctx, sub)
		if err != nil {
			e.logger.Error("failed to persist job", zap.Int("index", i), zap.Error(err))
			result.Errors = append(result.Errors, models.SubmissionError{
				Index: i, Error: err.Error(),
			})
			continue
		}

		switch outcome.Kind {
		case OutcomeCreated:
			result.Created = append(result.Created, *outcome.Job)
		case OutcomeUpdated:
			result.Updated = append(result.Updated, *outcome.Job)
		case OutcomeSkipped:
			result.Skipped = append(result.Skipped, models.SkippedItem{Index: i, Reason: outcome.Reason})
		case OutcomeRejected:
			result.Errors = append(result.Errors, models.SubmissionError{Index: i, Error: outcome.Reason})
		}
	}
	return result
}
