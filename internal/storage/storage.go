package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/config"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/models"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/normalize"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/query"
)

// JobStore is the persistence contract for one job domain. Every write
// re-applies the normalization rules before persisting, so normalized
// data is a store-level guarantee rather than a caller courtesy.
//
// Query results are always ordered by creation time, newest first.
type JobStore interface {
	// FindByKey looks up a record by its job_url. Returns (nil, nil)
	// when no record matches.
	FindByKey(ctx context.Context, key string) (*models.JobPosting, error)
	// FindByComposite looks up a record by the fallback identity tuple.
	FindByComposite(ctx context.Context, company, title *string, scrapedAt *time.Time) (*models.JobPosting, error)
	// Insert persists a new record, assigning its ID and timestamps. A
	// unique-key collision surfaces as a DUPLICATE domain error.
	Insert(ctx context.Context, job *models.JobPosting) (*models.JobPosting, error)
	// Update overwrites every mutable field of existing with the values
	// from fields, refreshing updated_at and leaving created_at alone.
	Update(ctx context.Context, existing *models.JobPosting, fields models.JobPosting) (*models.JobPosting, error)
	Query(ctx context.Context, f query.Filter) ([]models.JobPosting, error)
	Count(ctx context.Context, f query.Filter) (int64, error)
	// Stats aggregates counts relative to the given instant.
	Stats(ctx context.Context, at time.Time) (*models.Stats, error)
	Close() error
}

// Options carries the cross-backend dependencies.
type Options struct {
	Normalizer *normalize.Normalizer
	Logger     *zap.Logger
	Now        func() time.Time
}

func (o *Options) defaults() {
	if o.Normalizer == nil {
		o.Normalizer = normalize.New(time.Local)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// New creates a store for one domain table based on configuration.
func New(cfg config.StorageConfig, table string, opts Options) (JobStore, error) {
	opts.defaults()
	switch cfg.Type {
	case "postgresql":
		return NewPostgresStore(cfg.PostgresURI, table, opts)
	case "mongodb":
		return NewMongoStore(cfg.MongoDBURI, cfg.MongoDBName, table, opts)
	case "dynamodb":
		return NewDynamoDBStore(cfg, table, opts)
	case "memory":
		return NewMemoryStore(opts), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
