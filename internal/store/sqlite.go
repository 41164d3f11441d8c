package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/streeteats/ingest-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS trucks (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	record              TEXT NOT NULL,
	source_urls         TEXT NOT NULL DEFAULT '[]',
	data_quality_score  REAL NOT NULL DEFAULT 0,
	verification_status TEXT NOT NULL DEFAULT 'pending',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scraping_jobs (
	id             TEXT PRIMARY KEY,
	target_url     TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	priority       INTEGER NOT NULL DEFAULT 0,
	scheduled_at   DATETIME NOT NULL,
	started_at     DATETIME,
	completed_at   DATETIME,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	errors         TEXT NOT NULL DEFAULT '[]',
	data_collected TEXT
);

CREATE INDEX IF NOT EXISTS idx_trucks_name ON trucks(name);
CREATE INDEX IF NOT EXISTS idx_trucks_quality ON trucks(data_quality_score);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON scraping_jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_target_url ON scraping_jobs(target_url);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON scraping_jobs(status, priority, scheduled_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Trucks

func (s *SQLiteStore) CreateTruck(ctx context.Context, truck model.FoodTruck) (*model.StoredTruck, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal truck")
	}
	urlsJSON, err := json.Marshal(truck.SourceURLs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal source urls")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trucks (id, name, record, source_urls, data_quality_score, verification_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, truck.Name, string(recordJSON), string(urlsJSON),
		stored.DataQualityScore, string(stored.VerificationStatus), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert truck")
	}
	return stored, nil
}

func (s *SQLiteStore) GetTruck(ctx context.Context, id string) (*model.StoredTruck, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, record, data_quality_score, verification_status, created_at, updated_at
		 FROM trucks WHERE id = ?`, id)
	return scanTruck(row)
}

func (s *SQLiteStore) GetTruckByURL(ctx context.Context, sourceURL string) (*model.StoredTruck, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, record, data_quality_score, verification_status, created_at, updated_at
		 FROM trucks
		 WHERE EXISTS (SELECT 1 FROM json_each(trucks.source_urls) WHERE json_each.value = ?)
		 LIMIT 1`, sourceURL)
	return scanTruck(row)
}

func (s *SQLiteStore) UpdateTruck(ctx context.Context, truck *model.StoredTruck) error {
	truck.UpdatedAt = time.Now().UTC()

	recordJSON, err := json.Marshal(truck.FoodTruck)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal truck")
	}
	urlsJSON, err := json.Marshal(truck.SourceURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal source urls")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE trucks SET name = ?, record = ?, source_urls = ?, data_quality_score = ?,
		 verification_status = ?, updated_at = ? WHERE id = ?`,
		truck.Name, string(recordJSON), string(urlsJSON), truck.DataQualityScore,
		string(truck.VerificationStatus), truck.UpdatedAt, truck.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update truck %s", truck.ID)
	}
	return checkRowsAffected(res, "truck", truck.ID)
}

func (s *SQLiteStore) DeleteTruck(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trucks WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete truck %s", id)
	}
	return checkRowsAffected(res, "truck", id)
}

func (s *SQLiteStore) ListTrucks(ctx context.Context, filter TruckFilter) ([]model.StoredTruck, error) {
	query := `SELECT id, record, data_quality_score, verification_status, created_at, updated_at
	          FROM trucks WHERE 1=1`
	var args []any

	if filter.MinQualityScore > 0 {
		query += ` AND data_quality_score >= ?`
		args = append(args, filter.MinQualityScore)
	}
	if filter.VerificationStatus != "" {
		query += ` AND verification_status = ?`
		args = append(args, string(filter.VerificationStatus))
	}
	query += ` ORDER BY name ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list trucks")
	}
	defer rows.Close()

	var trucks []model.StoredTruck
	for rows.Next() {
		t, err := scanTruck(rows)
		if err != nil {
			return nil, err
		}
		trucks = append(trucks, *t)
	}
	return trucks, eris.Wrap(rows.Err(), "sqlite: list trucks iterate")
}

// Jobs

func (s *SQLiteStore) CreateJob(ctx context.Context, targetURL string, priority int, scheduledAt time.Time) (*model.ScrapingJob, error) {
	job := &model.ScrapingJob{
		ID:          uuid.New().String(),
		TargetURL:   targetURL,
		Status:      model.JobStatusPending,
		Priority:    priority,
		ScheduledAt: scheduledAt.UTC(),
		MaxRetries:  model.DefaultMaxRetries,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scraping_jobs (id, target_url, status, priority, scheduled_at, retry_count, max_retries, errors)
		 VALUES (?, ?, ?, ?, ?, 0, ?, '[]')`,
		job.ID, job.TargetURL, string(job.Status), job.Priority, job.ScheduledAt, job.MaxRetries,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ScrapingJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.ScrapingJob) error {
	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job errors")
	}

	var dataJSON sql.NullString
	if job.DataCollected != nil {
		b, err := json.Marshal(job.DataCollected)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal job data")
		}
		dataJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE scraping_jobs SET status = ?, priority = ?, scheduled_at = ?, started_at = ?,
		 completed_at = ?, retry_count = ?, errors = ?, data_collected = ? WHERE id = ?`,
		string(job.Status), job.Priority, job.ScheduledAt, job.StartedAt,
		job.CompletedAt, job.RetryCount, string(errorsJSON), dataJSON, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	return checkRowsAffected(res, "job", job.ID)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error) {
	query := jobSelect + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.TargetURL != "" {
		query += ` AND target_url = ?`
		args = append(args, filter.TargetURL)
	}
	query += ` ORDER BY priority DESC, scheduled_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	return s.queryJobs(ctx, query, args...)
}

func (s *SQLiteStore) DueJobs(ctx context.Context, limit int) ([]model.ScrapingJob, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryJobs(ctx,
		jobSelect+` WHERE status = ? AND scheduled_at <= ?
		 ORDER BY priority DESC, scheduled_at ASC LIMIT ?`,
		string(model.JobStatusPending), time.Now().UTC(), limit,
	)
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string, args ...any) ([]model.ScrapingJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query jobs")
	}
	defer rows.Close()

	var jobs []model.ScrapingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: jobs iterate")
}

// helpers

const jobSelect = `SELECT id, target_url, status, priority, scheduled_at, started_at,
 completed_at, retry_count, max_retries, errors, data_collected FROM scraping_jobs`

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = eris.New("not found")

func scanTruck(row scannable) (*model.StoredTruck, error) {
	var t model.StoredTruck
	var recordJSON string

	err := row.Scan(&t.ID, &recordJSON, &t.DataQualityScore, &t.VerificationStatus, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan truck")
	}

	if err := json.Unmarshal([]byte(recordJSON), &t.FoodTruck); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal truck record")
	}
	return &t, nil
}

func scanJob(row scannable) (*model.ScrapingJob, error) {
	var j model.ScrapingJob
	var errorsJSON string
	var dataJSON sql.NullString

	err := row.Scan(&j.ID, &j.TargetURL, &j.Status, &j.Priority, &j.ScheduledAt,
		&j.StartedAt, &j.CompletedAt, &j.RetryCount, &j.MaxRetries, &errorsJSON, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	if err := json.Unmarshal([]byte(errorsJSON), &j.Errors); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job errors")
	}
	if dataJSON.Valid {
		j.DataCollected = &model.FoodTruck{}
		if err := json.Unmarshal([]byte(dataJSON.String), j.DataCollected); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal job data")
		}
	}
	return &j, nil
}
