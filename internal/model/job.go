package model

import (
	"time"
)

// JobStatus represents the current state of a scraping job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// DefaultMaxRetries is the retry budget assigned to new jobs.
const DefaultMaxRetries = 3

// ScrapingJob is a unit of ingestion work for a single target URL.
//
// A job is created in pending, mutated only by the orchestrator, and never
// deleted by the pipeline. A failed job with RetryCount < MaxRetries is
// re-scheduled by the orchestrator itself, not by an external scheduler.
type ScrapingJob struct {
	ID          string     `json:"id"`
	TargetURL   string     `json:"target_url"`
	Status      JobStatus  `json:"status"`
	Priority    int        `json:"priority"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	Errors      []string   `json:"errors,omitempty"`

	// DataCollected holds the extracted payload once the job completes.
	DataCollected *FoodTruck `json:"data_collected,omitempty"`
}

// Terminal reports whether the job can make no further progress: completed,
// or failed with its retry budget exhausted.
func (j *ScrapingJob) Terminal() bool {
	if j.Status == JobStatusCompleted {
		return true
	}
	return j.Status == JobStatusFailed && j.RetryCount >= j.MaxRetries
}

// RetryEligible reports whether a failed job may be re-attempted.
func (j *ScrapingJob) RetryEligible() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}
