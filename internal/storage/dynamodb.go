package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/google/uuid"

	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/config"
	apperrors "github.com/AbdullahAlHarun-code/bdjobsapi/internal/errors"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/models"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/query"
)

// DynamoDBStore implements JobStore on a DynamoDB table. Dedup lookups
// and filtered reads run as table scans evaluated against the shared
// reference matcher; the dataset is small scraped batches, not a
// high-volume key-value workload.
type DynamoDBStore struct {
	client *dynamodb.DynamoDB
	table  string
	opts   Options
}

// NewDynamoDBStore creates the store and, for local endpoints, the
// backing table.
func NewDynamoDBStore(cfg config.StorageConfig, table string, opts Options) (*DynamoDBStore, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	// For local testing with DynamoDB Local.
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}

	s := &DynamoDBStore{
		client: dynamodb.New(sess),
		table:  table,
		opts:   opts,
	}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("ensure table %s: %w", table, err)
	}
	return s, nil
}

func (s *DynamoDBStore) ensureTable() error {
	_, err := s.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err == nil {
		return nil
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       aws.String("HASH"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("id"),
				AttributeType: aws.String("S"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}
	if _, err := s.client.CreateTable(input); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	return s.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
}

// scanAll reads the whole table. Pagination is followed across pages.
func (s *DynamoDBStore) scanAll(ctx context.Context) ([]models.JobPosting, error) {
	var jobs []models.JobPosting
	input := &dynamodb.ScanInput{TableName: aws.String(s.table)}

	for {
		result, err := s.client.ScanWithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan jobs: %w", err)
		}

		var page []models.JobPosting
		if err := dynamodbattribute.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal jobs: %w", err)
		}
		jobs = append(jobs, page...)

		if result.LastEvaluatedKey == nil {
			return jobs, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (s *DynamoDBStore) FindByKey(ctx context.Context, key string) (*models.JobPosting, error) {
	jobs, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].JobURL != nil && *jobs[i].JobURL == key {
			return &jobs[i], nil
		}
	}
	return nil, nil
}

func (s *DynamoDBStore) FindByComposite(ctx context.Context, company, title *string, scrapedAt *time.Time) (*models.JobPosting, error) {
	jobs, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if ptrEq(jobs[i].CompanyName, company) &&
			ptrEq(jobs[i].JobTitle, title) &&
			timeEq(jobs[i].ScrapedAt, scrapedAt) {
			return &jobs[i], nil
		}
	}
	return nil, nil
}

func ptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timeEq(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (s *DynamoDBStore) Insert(ctx context.Context, job *models.JobPosting) (*models.JobPosting, error) {
	s.opts.Normalizer.Record(job)

	// The table has no native unique constraint on job_url; the key
	// check runs here so concurrent inserts of the same key at worst
	// duplicate (the unique guarantee is best-effort on this backend).
	if job.JobURL != nil {
		existing, err := s.FindByKey(ctx, *job.JobURL)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperrors.Duplicate("job_url already exists", nil)
		}
	}

	now := s.opts.Now()
	job.ID = uuid.NewString()
	job.CreatedAt = now
	job.UpdatedAt = now

	item, err := dynamodbattribute.MarshalMap(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if _, err := s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *DynamoDBStore) Update(ctx context.Context, existing *models.JobPosting, fields models.JobPosting) (*models.JobPosting, error) {
	s.opts.Normalizer.Record(&fields)
	fields.ID = existing.ID
	fields.CreatedAt = existing.CreatedAt
	fields.UpdatedAt = s.opts.Now()

	item, err := dynamodbattribute.MarshalMap(&fields)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if _, err := s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return nil, fmt.Errorf("update job %s: %w", fields.ID, err)
	}
	return &fields, nil
}

func (s *DynamoDBStore) Query(ctx context.Context, f query.Filter) ([]models.JobPosting, error) {
	jobs, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := []models.JobPosting{}
	for _, j := range jobs {
		if query.Matches(j, f) {
			matched = append(matched, j)
		}
	}
	sort.Slice(matched, func(i, k int) bool {
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})
	return matched, nil
}

func (s *DynamoDBStore) Count(ctx context.Context, f query.Filter) (int64, error) {
	jobs, err := s.Query(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(jobs)), nil
}

func (s *DynamoDBStore) Stats(ctx context.Context, at time.Time) (*models.Stats, error) {
	jobs, err := s.Query(ctx, query.Filter{})
	if err != nil {
		return nil, err
	}
	return statsFromJobs(jobs, at), nil
}

// Close is a no-op; the DynamoDB client holds no connection state.
func (s *DynamoDBStore) Close() error {
	return nil
}
