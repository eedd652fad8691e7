package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/AbdullahAlHarun-code/bdjobsapi/internal/errors"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/models"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/query"
)

// MongoStore implements JobStore on a MongoDB collection with a partial
// unique index on job_url.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	opts       Options
}

// NewMongoStore connects to MongoDB and ensures the collection indexes.
func NewMongoStore(uri, database, collection string, opts Options) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		opts:       opts,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes for %s: %w", collection, err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "job_url", Value: 1}},
			Options: options.Index().SetUnique(true).
				// Only string-valued keys participate; keyless records
				// may repeat freely.
				SetPartialFilterExpression(bson.M{"job_url": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	return err
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.JobPosting, error) {
	var j models.JobPosting
	err := s.collection.FindOne(ctx, filter).Decode(&j)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *MongoStore) FindByKey(ctx context.Context, key string) (*models.JobPosting, error) {
	j, err := s.findOne(ctx, bson.M{"job_url": key})
	if err != nil {
		return nil, fmt.Errorf("find by key: %w", err)
	}
	return j, nil
}

func (s *MongoStore) FindByComposite(ctx context.Context, company, title *string, scrapedAt *time.Time) (*models.JobPosting, error) {
	j, err := s.findOne(ctx, bson.M{
		"company_name": company,
		"job_title":    title,
		"scraped_at":   scrapedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("find by composite: %w", err)
	}
	return j, nil
}

func (s *MongoStore) Insert(ctx context.Context, job *models.JobPosting) (*models.JobPosting, error) {
	s.opts.Normalizer.Record(job)
	now := s.opts.Now()
	job.ID = uuid.NewString()
	job.CreatedAt = now
	job.UpdatedAt = now

	if _, err := s.collection.InsertOne(ctx, job); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperrors.Duplicate("job_url already exists", err)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *MongoStore) Update(ctx context.Context, existing *models.JobPosting, fields models.JobPosting) (*models.JobPosting, error) {
	s.opts.Normalizer.Record(&fields)
	fields.ID = existing.ID
	fields.CreatedAt = existing.CreatedAt
	fields.UpdatedAt = s.opts.Now()

	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": fields.ID}, fields)
	if err != nil {
		return nil, fmt.Errorf("update job %s: %w", fields.ID, err)
	}
	return &fields, nil
}

// bsonFilter translates a Filter. Semantics must agree with query.Matches.
func (s *MongoStore) bsonFilter(f query.Filter) bson.M {
	filter := bson.M{}

	created := bson.M{}
	if f.From != nil {
		created["$gte"] = *f.From
	}
	if f.Until != nil {
		created["$lt"] = *f.Until
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}

	sub := func(field, substr string) {
		if substr != "" {
			filter[field] = primitive.Regex{Pattern: regexp.QuoteMeta(substr), Options: "i"}
		}
	}
	sub("company_name", f.Company)
	sub("job_title", f.Title)
	sub("vacancies", f.Vacancies)
	sub("deadline", f.Deadline)
	return filter
}

func (s *MongoStore) Query(ctx context.Context, f query.Filter) ([]models.JobPosting, error) {
	cursor, err := s.collection.Find(ctx, s.bsonFilter(f),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer cursor.Close(ctx)

	jobs := []models.JobPosting{}
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return jobs, nil
}

func (s *MongoStore) Count(ctx context.Context, f query.Filter) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, s.bsonFilter(f))
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

func (s *MongoStore) Stats(ctx context.Context, at time.Time) (*models.Stats, error) {
	st := &models.Stats{}

	counts := []struct {
		dst    *int64
		filter bson.M
	}{
		{&st.TotalJobs, bson.M{}},
		{&st.Today, s.bsonFilter(query.Today(at, at.Location()))},
		{&st.ThisWeek, s.bsonFilter(query.LastWeek(at))},
		{&st.ThisMonth, s.bsonFilter(query.ThisMonth(at, at.Location()))},
		{&st.WithVacancies, bson.M{"vacancies": bson.M{"$type": "string"}}},
		{&st.WithDeadlines, bson.M{"deadline": bson.M{"$type": "string"}}},
	}
	for _, c := range counts {
		n, err := s.collection.CountDocuments(ctx, c.filter)
		if err != nil {
			return nil, fmt.Errorf("count stats: %w", err)
		}
		*c.dst = n
	}

	var latest models.JobPosting
	err := s.collection.FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).Decode(&latest)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return nil, fmt.Errorf("latest job: %w", err)
	default:
		st.LastUpdated = &latest.CreatedAt
	}
	return st, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
