package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/streeteats/ingest-cli/internal/model"
)

// pgPool is the minimal pool surface used by PostgresStore. pgxmock
// implements it for tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgPool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool pgPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS trucks (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name                TEXT NOT NULL,
	record              JSONB NOT NULL,
	source_urls         JSONB NOT NULL DEFAULT '[]',
	data_quality_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	verification_status TEXT NOT NULL DEFAULT 'pending',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scraping_jobs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	target_url     TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	priority       INTEGER NOT NULL DEFAULT 0,
	scheduled_at   TIMESTAMPTZ NOT NULL,
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	errors         JSONB NOT NULL DEFAULT '[]',
	data_collected JSONB
);

CREATE INDEX IF NOT EXISTS idx_trucks_name ON trucks(name);
CREATE INDEX IF NOT EXISTS idx_trucks_quality ON trucks(data_quality_score);
CREATE INDEX IF NOT EXISTS idx_trucks_source_urls ON trucks USING gin(source_urls);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON scraping_jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_target_url ON scraping_jobs(target_url);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON scraping_jobs(status, priority DESC, scheduled_at ASC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Trucks

func (s *PostgresStore) CreateTruck(ctx context.Context, truck model.FoodTruck) (*model.StoredTruck, error) {
	now := time.Now().UTC()
	stored := &model.StoredTruck{
		FoodTruck:          truck,
		ID:                 uuid.New().String(),
		CreatedAt:          now,
		UpdatedAt:          now,
		VerificationStatus: model.VerificationPending,
	}

	recordJSON, err := json.Marshal(stored.FoodTruck)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal truck")
	}
	urlsJSON, err := json.Marshal(truck.SourceURLs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal source urls")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO trucks (id, name, record, source_urls, data_quality_score, verification_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		stored.ID, truck.Name, recordJSON, urlsJSON,
		stored.DataQualityScore, string(stored.VerificationStatus), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert truck")
	}
	return stored, nil
}

const truckSelect = `SELECT id, record, data_quality_score, verification_status, created_at, updated_at FROM trucks`

func (s *PostgresStore) GetTruck(ctx context.Context, id string) (*model.StoredTruck, error) {
	row := s.pool.QueryRow(ctx, truckSelect+` WHERE id = $1`, id)
	return scanPgTruck(row)
}

func (s *PostgresStore) GetTruckByURL(ctx context.Context, sourceURL string) (*model.StoredTruck, error) {
	row := s.pool.QueryRow(ctx,
		truckSelect+` WHERE source_urls @> to_jsonb(ARRAY[$1::text]) LIMIT 1`, sourceURL)
	return scanPgTruck(row)
}

func (s *PostgresStore) UpdateTruck(ctx context.Context, truck *model.StoredTruck) error {
	truck.UpdatedAt = time.Now().UTC()

	recordJSON, err := json.Marshal(truck.FoodTruck)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal truck")
	}
	urlsJSON, err := json.Marshal(truck.SourceURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal source urls")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE trucks SET name = $1, record = $2, source_urls = $3, data_quality_score = $4,
		 verification_status = $5, updated_at = $6 WHERE id = $7`,
		truck.Name, recordJSON, urlsJSON, truck.DataQualityScore,
		string(truck.VerificationStatus), truck.UpdatedAt, truck.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update truck %s", truck.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("truck not found: %s", truck.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteTruck(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trucks WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete truck %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("truck not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListTrucks(ctx context.Context, filter TruckFilter) ([]model.StoredTruck, error) {
	query := truckSelect + ` WHERE 1=1`
	var args []any

	if filter.MinQualityScore > 0 {
		args = append(args, filter.MinQualityScore)
		query += ` AND data_quality_score >= $` + itoa(len(args))
	}
	if filter.VerificationStatus != "" {
		args = append(args, string(filter.VerificationStatus))
		query += ` AND verification_status = $` + itoa(len(args))
	}
	query += ` ORDER BY name ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list trucks")
	}
	defer rows.Close()

	var trucks []model.StoredTruck
	for rows.Next() {
		t, err := scanPgTruck(rows)
		if err != nil {
			return nil, err
		}
		trucks = append(trucks, *t)
	}
	return trucks, eris.Wrap(rows.Err(), "postgres: list trucks iterate")
}

// Jobs

func (s *PostgresStore) CreateJob(ctx context.Context, targetURL string, priority int, scheduledAt time.Time) (*model.ScrapingJob, error) {
	job := &model.ScrapingJob{
		ID:          uuid.New().String(),
		TargetURL:   targetURL,
		Status:      model.JobStatusPending,
		Priority:    priority,
		ScheduledAt: scheduledAt.UTC(),
		MaxRetries:  model.DefaultMaxRetries,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scraping_jobs (id, target_url, status, priority, scheduled_at, retry_count, max_retries, errors)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, '[]')`,
		job.ID, job.TargetURL, string(job.Status), job.Priority, job.ScheduledAt, job.MaxRetries,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return job, nil
}

const pgJobSelect = `SELECT id, target_url, status, priority, scheduled_at, started_at,
 completed_at, retry_count, max_retries, errors, data_collected FROM scraping_jobs`

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.ScrapingJob, error) {
	row := s.pool.QueryRow(ctx, pgJobSelect+` WHERE id = $1`, id)
	return scanPgJob(row)
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.ScrapingJob) error {
	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job errors")
	}

	var dataJSON []byte
	if job.DataCollected != nil {
		dataJSON, err = json.Marshal(job.DataCollected)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal job data")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scraping_jobs SET status = $1, priority = $2, scheduled_at = $3, started_at = $4,
		 completed_at = $5, retry_count = $6, errors = $7, data_collected = $8 WHERE id = $9`,
		string(job.Status), job.Priority, job.ScheduledAt, job.StartedAt,
		job.CompletedAt, job.RetryCount, errorsJSON, dataJSON, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error) {
	query := pgJobSelect + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + itoa(len(args))
	}
	if filter.TargetURL != "" {
		args = append(args, filter.TargetURL)
		query += ` AND target_url = $` + itoa(len(args))
	}
	query += ` ORDER BY priority DESC, scheduled_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	return s.queryJobs(ctx, query, args...)
}

func (s *PostgresStore) DueJobs(ctx context.Context, limit int) ([]model.ScrapingJob, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryJobs(ctx,
		pgJobSelect+` WHERE status = $1 AND scheduled_at <= now()
		 ORDER BY priority DESC, scheduled_at ASC LIMIT $2`,
		string(model.JobStatusPending), limit,
	)
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]model.ScrapingJob, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query jobs")
	}
	defer rows.Close()

	var jobs []model.ScrapingJob
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: jobs iterate")
}

// helpers

func scanPgTruck(row pgx.Row) (*model.StoredTruck, error) {
	var t model.StoredTruck
	var recordJSON []byte

	err := row.Scan(&t.ID, &recordJSON, &t.DataQualityScore, &t.VerificationStatus, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan truck")
	}

	if err := json.Unmarshal(recordJSON, &t.FoodTruck); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal truck record")
	}
	return &t, nil
}

func scanPgJob(row pgx.Row) (*model.ScrapingJob, error) {
	var j model.ScrapingJob
	var errorsJSON []byte
	var dataJSON []byte

	err := row.Scan(&j.ID, &j.TargetURL, &j.Status, &j.Priority, &j.ScheduledAt,
		&j.StartedAt, &j.CompletedAt, &j.RetryCount, &j.MaxRetries, &errorsJSON, &dataJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan job")
	}

	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &j.Errors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job errors")
		}
	}
	if len(dataJSON) > 0 {
		j.DataCollected = &model.FoodTruck{}
		if err := json.Unmarshal(dataJSON, j.DataCollected); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job data")
		}
	}
	return &j, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
