package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/streeteats/ingest-cli/internal/config"
	"github.com/streeteats/ingest-cli/internal/dedupe"
	"github.com/streeteats/ingest-cli/internal/model"
	"github.com/streeteats/ingest-cli/internal/store"
)

// JobError is one failed job's terminal error, kept for the run summary.
type JobError struct {
	JobID     string `json:"job_id"`
	TargetURL string `json:"target_url"`
	Message   string `json:"message"`
}

// RunSummary aggregates the results of one coordinator pass.
type RunSummary struct {
	Processed    int `json:"processed"`
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Merged       int `json:"merged"`
	Skipped      int `json:"skipped"`
	ManualReview int `json:"manual_review"`
	Failed       int `json:"failed"`
	FailedOpen   int `json:"failed_open"`

	// ErrorDetails holds at most the configured number of terminal job
	// errors; the Failed counter is always complete.
	ErrorDetails []JobError `json:"error_details,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Coordinator pulls due jobs from the store and runs them through the
// orchestrator with bounded concurrency and a ceiling on extraction rate.
type Coordinator struct {
	store store.Store
	orch  *Orchestrator
	cfg   config.PipelineConfig
}

// NewCoordinator builds a coordinator over the given orchestrator.
func NewCoordinator(st store.Store, orch *Orchestrator, cfg config.PipelineConfig) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxErrorDetail <= 0 {
		cfg.MaxErrorDetail = 25
	}
	return &Coordinator{store: st, orch: orch, cfg: cfg}
}

// Run executes one batch of due jobs. Individual job failures are counted in
// the summary, not returned as errors; only infrastructure failure (listing
// jobs, context cancellation) fails the run itself.
func (c *Coordinator) Run(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{StartedAt: time.Now().UTC()}

	jobs, err := c.store.DueJobs(ctx, c.cfg.BatchSize)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list due jobs")
	}
	if len(jobs) == 0 {
		summary.FinishedAt = time.Now().UTC()
		return summary, nil
	}

	zap.L().Info("starting ingestion run",
		zap.Int("jobs", len(jobs)),
		zap.Int("max_concurrent", c.cfg.MaxConcurrent),
	)

	var limiter *rate.Limiter
	if c.cfg.ExtractionsRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.ExtractionsRPS), 1)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrent)

	for i := range jobs {
		job := &jobs[i]
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return eris.Wrap(err, "pipeline: rate limiter")
				}
			}

			outcome, err := c.orch.Process(gctx, job)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++

			if err != nil {
				if errors.Is(err, ErrJobAlreadyRunning) {
					// Stays pending; the next run picks it up.
					summary.Skipped++
					return nil
				}
				summary.Failed++
				if len(summary.ErrorDetails) < c.cfg.MaxErrorDetail {
					summary.ErrorDetails = append(summary.ErrorDetails, JobError{
						JobID:     job.ID,
						TargetURL: job.TargetURL,
						Message:   err.Error(),
					})
				}
				// A terminally failed job does not abort the batch.
				return nil
			}

			if outcome.FailOpen != "" {
				summary.FailedOpen++
			}
			switch outcome.Action {
			case dedupe.ActionCreate:
				summary.Created++
			case dedupe.ActionUpdate:
				summary.Updated++
			case dedupe.ActionMerge:
				summary.Merged++
			case dedupe.ActionManualReview:
				summary.ManualReview++
			case dedupe.ActionSkip:
				summary.Skipped++
			}
			return nil
		})
	}

	waitErr := g.Wait()
	summary.FinishedAt = time.Now().UTC()
	if waitErr != nil {
		// Cancellation mid-run: the counts aggregated so far are still valid,
		// report them alongside the error.
		return summary, waitErr
	}
	zap.L().Info("ingestion run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("merged", summary.Merged),
		zap.Int("manual_review", summary.ManualReview),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	return summary, nil
}

// ProcessURL enqueues a job for the URL (unless a pending one exists) and
// drives it to completion immediately. Used by the one-shot ingest command.
func (c *Coordinator) ProcessURL(ctx context.Context, targetURL string, priority int) (*Outcome, error) {
	job, err := c.findOrCreateJob(ctx, targetURL, priority)
	if err != nil {
		return nil, err
	}
	return c.orch.Process(ctx, job)
}

// findOrCreateJob reuses an existing pending job for the URL to keep the
// queue free of duplicates.
func (c *Coordinator) findOrCreateJob(ctx context.Context, targetURL string, priority int) (*model.ScrapingJob, error) {
	pending, err := c.store.ListJobs(ctx, store.JobFilter{
		Status:    model.JobStatusPending,
		TargetURL: targetURL,
		Limit:     1,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: look up pending job")
	}
	if len(pending) > 0 {
		return &pending[0], nil
	}

	job, err := c.store.CreateJob(ctx, targetURL, priority, time.Now().UTC())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create job")
	}
	return job, nil
}
