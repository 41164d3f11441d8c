package store

import (
	"context"
	"time"

	"github.com/streeteats/ingest-cli/internal/model"
)

// JobFilter specifies criteria for listing scraping jobs.
type JobFilter struct {
	Status    model.JobStatus `json:"status,omitempty"`
	TargetURL string          `json:"target_url,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// TruckFilter specifies criteria for listing stored trucks.
type TruckFilter struct {
	MinQualityScore    float64                  `json:"min_quality_score,omitempty"`
	VerificationStatus model.VerificationStatus `json:"verification_status,omitempty"`
	Limit              int                      `json:"limit,omitempty"`
	Offset             int                      `json:"offset,omitempty"`
}

// Store defines the persistence interface for the ingestion pipeline. The
// pipeline assumes per-record atomic read/update and nothing more; a failed
// read during duplicate resolution is treated as "no match".
type Store interface {
	// Trucks
	CreateTruck(ctx context.Context, truck model.FoodTruck) (*model.StoredTruck, error)
	GetTruck(ctx context.Context, id string) (*model.StoredTruck, error)
	GetTruckByURL(ctx context.Context, sourceURL string) (*model.StoredTruck, error)
	UpdateTruck(ctx context.Context, truck *model.StoredTruck) error
	DeleteTruck(ctx context.Context, id string) error
	ListTrucks(ctx context.Context, filter TruckFilter) ([]model.StoredTruck, error)

	// Jobs
	CreateJob(ctx context.Context, targetURL string, priority int, scheduledAt time.Time) (*model.ScrapingJob, error)
	GetJob(ctx context.Context, id string) (*model.ScrapingJob, error)
	UpdateJob(ctx context.Context, job *model.ScrapingJob) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error)

	// DueJobs returns pending jobs whose scheduled_at has passed, ordered by
	// priority descending then scheduled_at ascending.
	DueJobs(ctx context.Context, limit int) ([]model.ScrapingJob, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
