package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "github.com/AbdullahAlHarun-code/bdjobsapi/internal/errors"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/models"
	"github.com/AbdullahAlHarun-code/bdjobsapi/internal/query"
)

const pqUniqueViolation = "23505"

// PostgresStore implements JobStore on a relational table with a
// partial unique index on job_url and a descending created_at index.
type PostgresStore struct {
	db    *sql.DB
	table string
	opts  Options
}

// NewPostgresStore opens the database and ensures the domain table and
// its indexes exist.
func NewPostgresStore(uri, table string, opts Options) (*PostgresStore, error) {
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db, table: table, opts: opts}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure schema for %s: %w", table, err)
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			job_title TEXT,
			company_name TEXT,
			company_logo_url TEXT,
			job_url TEXT,
			vacancies TEXT,
			deadline TEXT,
			posted_date TEXT,
			scraped_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, pq.QuoteIdentifier(s.table)),
		// Partial index: rows without a key may repeat freely.
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (job_url) WHERE job_url IS NOT NULL`,
			pq.QuoteIdentifier(s.table+"_job_url_key"), pq.QuoteIdentifier(s.table)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_at DESC)`,
			pq.QuoteIdentifier(s.table+"_created_at_idx"), pq.QuoteIdentifier(s.table)),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const jobColumns = `id, job_title, company_name, company_logo_url, job_url,
	vacancies, deadline, posted_date, scraped_at, created_at, updated_at`

func (s *PostgresStore) scanJob(row interface{ Scan(...any) error }) (*models.JobPosting, error) {
	var j models.JobPosting
	err := row.Scan(&j.ID, &j.JobTitle, &j.CompanyName, &j.CompanyLogoURL,
		&j.JobURL, &j.Vacancies, &j.Deadline, &j.PostedDate, &j.ScrapedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, key string) (*models.JobPosting, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE job_url = $1 LIMIT 1`,
		jobColumns, pq.QuoteIdentifier(s.table))
	j, err := s.scanJob(s.db.QueryRowContext(ctx, q, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by key: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) FindByComposite(ctx context.Context, company, title *string, scrapedAt *time.Time) (*models.JobPosting, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE company_name IS NOT DISTINCT FROM $1
		  AND job_title IS NOT DISTINCT FROM $2
		  AND scraped_at IS NOT DISTINCT FROM $3
		LIMIT 1`, jobColumns, pq.QuoteIdentifier(s.table))
	j, err := s.scanJob(s.db.QueryRowContext(ctx, q, company, title, scrapedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by composite: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) Insert(ctx context.Context, job *models.JobPosting) (*models.JobPosting, error) {
	s.opts.Normalizer.Record(job)
	now := s.opts.Now()
	job.ID = uuid.NewString()
	job.CreatedAt = now
	job.UpdatedAt = now

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		pq.QuoteIdentifier(s.table), jobColumns)
	_, err := s.db.ExecContext(ctx, q, job.ID, job.JobTitle, job.CompanyName,
		job.CompanyLogoURL, job.JobURL, job.Vacancies, job.Deadline,
		job.PostedDate, job.ScrapedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, apperrors.Duplicate("job_url already exists", err)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) Update(ctx context.Context, existing *models.JobPosting, fields models.JobPosting) (*models.JobPosting, error) {
	s.opts.Normalizer.Record(&fields)
	fields.ID = existing.ID
	fields.CreatedAt = existing.CreatedAt
	fields.UpdatedAt = s.opts.Now()

	q := fmt.Sprintf(`UPDATE %s SET job_title=$2, company_name=$3,
		company_logo_url=$4, job_url=$5, vacancies=$6, deadline=$7,
		posted_date=$8, scraped_at=$9, updated_at=$10 WHERE id=$1`,
		pq.QuoteIdentifier(s.table))
	_, err := s.db.ExecContext(ctx, q, fields.ID, fields.JobTitle,
		fields.CompanyName, fields.CompanyLogoURL, fields.JobURL,
		fields.Vacancies, fields.Deadline, fields.PostedDate,
		fields.ScrapedAt, fields.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update job %s: %w", fields.ID, err)
	}
	return &fields, nil
}

// whereClause translates a Filter to SQL. Semantics must agree with
// query.Matches.
func (s *PostgresStore) whereClause(f query.Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.Until != nil {
		add("created_at < $%d", *f.Until)
	}
	if f.Company != "" {
		add("company_name ILIKE $%d", "%"+escapeLike(f.Company)+"%")
	}
	if f.Title != "" {
		add("job_title ILIKE $%d", "%"+escapeLike(f.Title)+"%")
	}
	if f.Vacancies != "" {
		add("vacancies ILIKE $%d", "%"+escapeLike(f.Vacancies)+"%")
	}
	if f.Deadline != "" {
		add("deadline ILIKE $%d", "%"+escapeLike(f.Deadline)+"%")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *PostgresStore) Query(ctx context.Context, f query.Filter) ([]models.JobPosting, error) {
	where, args := s.whereClause(f)
	q := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY created_at DESC`,
		jobColumns, pq.QuoteIdentifier(s.table), where)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.JobPosting{}
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, f query.Filter) (int64, error) {
	where, args := s.whereClause(f)
	q := fmt.Sprintf(`SELECT count(*) FROM %s%s`, pq.QuoteIdentifier(s.table), where)

	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Stats(ctx context.Context, at time.Time) (*models.Stats, error) {
	today := query.Today(at, at.Location())
	week := query.LastWeek(at)
	month := query.ThisMonth(at, at.Location())

	q := fmt.Sprintf(`SELECT
		count(*),
		count(*) FILTER (WHERE created_at >= $1 AND created_at < $2),
		count(*) FILTER (WHERE created_at >= $3),
		count(*) FILTER (WHERE created_at >= $4),
		count(*) FILTER (WHERE vacancies IS NOT NULL),
		count(*) FILTER (WHERE deadline IS NOT NULL),
		max(created_at)
	FROM %s`, pq.QuoteIdentifier(s.table))

	var st models.Stats
	err := s.db.QueryRowContext(ctx, q,
		*today.From, *today.Until, *week.From, *month.From).
		Scan(&st.TotalJobs, &st.Today, &st.ThisWeek, &st.ThisMonth,
			&st.WithVacancies, &st.WithDeadlines, &st.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
