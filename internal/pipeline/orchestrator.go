// Package pipeline drives scraping jobs through their state machine and
// coordinates ingestion runs.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/streeteats/ingest-cli/internal/config"
	"github.com/streeteats/ingest-cli/internal/dedupe"
	"github.com/streeteats/ingest-cli/internal/model"
	"github.com/streeteats/ingest-cli/internal/quality"
	"github.com/streeteats/ingest-cli/internal/resilience"
	"github.com/streeteats/ingest-cli/internal/store"
	"github.com/streeteats/ingest-cli/pkg/extract"
	"github.com/streeteats/ingest-cli/pkg/fetch"
)

// ErrJobAlreadyRunning is returned when another job for the same target URL
// is in flight. The rejected job stays pending for a later pass.
var ErrJobAlreadyRunning = eris.New("pipeline: job already running for this url")

// Outcome describes what one successfully completed job did to storage.
type Outcome struct {
	Job     *model.ScrapingJob
	Action  dedupe.Action
	TruckID string

	// FailOpen carries the duplicate-resolution failure reason when the
	// resolver could not compare and fell back to create.
	FailOpen string
}

// Orchestrator owns the scraping-job life cycle: pending -> running ->
// {completed|failed}, with self-driven retries up to the job's budget.
type Orchestrator struct {
	store     store.Store
	fetcher   fetch.Client
	extractor extract.Client
	resolver  *dedupe.Resolver
	scorer    *quality.Scorer
	cfg       config.PipelineConfig

	urls     *urlLocks
	entities *entityLocks
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(st store.Store, fetcher fetch.Client, extractor extract.Client, resolver *dedupe.Resolver, scorer *quality.Scorer, cfg config.PipelineConfig) *Orchestrator {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	return &Orchestrator{
		store:     st,
		fetcher:   fetcher,
		extractor: extractor,
		resolver:  resolver,
		scorer:    scorer,
		cfg:       cfg,
		urls:      newURLLocks(),
		entities:  newEntityLocks(),
	}
}

// Process drives one job to a terminal state. Failed attempts are retried
// after a fixed delay until the job's retry budget is exhausted. Returns the
// outcome of the successful attempt, or the last attempt's error once the
// job is terminally failed.
func (o *Orchestrator) Process(ctx context.Context, job *model.ScrapingJob) (*Outcome, error) {
	if !o.urls.TryAcquire(job.TargetURL) {
		return nil, ErrJobAlreadyRunning
	}
	defer o.urls.Release(job.TargetURL)

	log := zap.L().With(zap.String("job_id", job.ID), zap.String("url", job.TargetURL))

	for {
		outcome, err := o.attempt(ctx, job)
		if err == nil {
			return outcome, nil
		}

		// running -> failed: record the error without advancing the retry
		// counter yet.
		job.Status = model.JobStatusFailed
		job.Errors = append(job.Errors, err.Error())
		if uerr := o.store.UpdateJob(ctx, job); uerr != nil {
			log.Error("persisting job failure state failed", zap.Error(uerr))
		}

		// failed -> retry: the increment that may trigger terminal failure.
		job.RetryCount++
		if uerr := o.store.UpdateJob(ctx, job); uerr != nil {
			log.Error("persisting job retry count failed", zap.Error(uerr))
		}

		if job.RetryCount >= job.MaxRetries {
			log.Warn("job permanently failed",
				zap.Int("retry_count", job.RetryCount),
				zap.Error(err),
			)
			return nil, err
		}

		log.Info("scheduling job retry",
			zap.Int("retry_count", job.RetryCount),
			zap.Duration("delay", o.cfg.RetryDelay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(o.cfg.RetryDelay):
		}
	}
}

// attempt runs a single pending -> running -> completed pass.
func (o *Orchestrator) attempt(ctx context.Context, job *model.ScrapingJob) (*Outcome, error) {
	now := time.Now().UTC()
	job.Status = model.JobStatusRunning
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark job running")
	}

	// A job may not run longer than the configured ceiling; on expiry it
	// fails with a timeout error and stays retry-eligible.
	runCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()

	page, err := resilience.DoVal(runCtx, resilience.DefaultPolicy(), "fetch",
		func(ctx context.Context) (*fetch.Page, error) {
			return o.fetcher.Fetch(ctx, job.TargetURL)
		})
	if err != nil {
		return nil, timeoutErr(runCtx, eris.Wrap(err, "pipeline: fetch content"))
	}

	sourceURL := page.URL
	if sourceURL == "" {
		sourceURL = job.TargetURL
	}

	truck, err := resilience.DoVal(runCtx, resilience.DefaultPolicy(), "extract",
		func(ctx context.Context) (*model.FoodTruck, error) {
			return o.extractor.Extract(ctx, page.Markdown, sourceURL)
		})
	if err != nil {
		return nil, timeoutErr(runCtx, eris.Wrap(err, "pipeline: extract record"))
	}

	outcome, err := o.persistTruck(runCtx, truck)
	if err != nil {
		return nil, timeoutErr(runCtx, err)
	}

	completedAt := time.Now().UTC()
	job.Status = model.JobStatusCompleted
	job.CompletedAt = &completedAt
	job.DataCollected = truck
	if err := o.store.UpdateJob(runCtx, job); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark job completed")
	}

	outcome.Job = job
	return outcome, nil
}

// persistTruck runs duplicate resolution and applies the chosen storage
// action under the entity lock so concurrent ingestions of the same truck
// cannot race compare-then-persist.
func (o *Orchestrator) persistTruck(ctx context.Context, truck *model.FoodTruck) (*Outcome, error) {
	unlock := o.entities.Lock(entityKey(truck))
	defer unlock()

	detection := o.resolver.CheckForDuplicates(ctx, truck)
	outcome := &Outcome{Action: detection.Action, FailOpen: detection.FailureReason}

	switch detection.Action {
	case dedupe.ActionCreate:
		stored, err := o.store.CreateTruck(ctx, *truck)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create truck")
		}
		o.stampQuality(ctx, stored)
		outcome.TruckID = stored.ID

	case dedupe.ActionUpdate:
		target := detection.BestMatch.Truck
		applyUpdate(target, truck)
		if err := o.store.UpdateTruck(ctx, target); err != nil {
			return nil, eris.Wrapf(err, "pipeline: update truck %s", target.ID)
		}
		o.stampQuality(ctx, target)
		outcome.TruckID = target.ID

	case dedupe.ActionMerge:
		target := detection.BestMatch.Truck
		dedupe.MergeRecord(target, truck)
		if err := o.store.UpdateTruck(ctx, target); err != nil {
			return nil, eris.Wrapf(err, "pipeline: merge into truck %s", target.ID)
		}
		o.stampQuality(ctx, target)
		outcome.TruckID = target.ID

	case dedupe.ActionManualReview:
		// Not persisted; flag the closest stored record for an operator.
		target := detection.BestMatch.Truck
		target.VerificationStatus = model.VerificationFlagged
		if err := o.store.UpdateTruck(ctx, target); err != nil {
			zap.L().Warn("pipeline: flagging truck for review failed",
				zap.String("truck_id", target.ID),
				zap.Error(err),
			)
		}
		outcome.TruckID = target.ID

	case dedupe.ActionSkip:
		// Nothing to persist.
	}

	return outcome, nil
}

// stampQuality recomputes the record's completeness score and persists it
// denormalized. Failure here degrades filtering, not correctness, so it is
// logged rather than failing the job.
func (o *Orchestrator) stampQuality(ctx context.Context, stored *model.StoredTruck) {
	result := o.scorer.Score(stored)
	stored.DataQualityScore = result.NormalizedScore()
	if err := o.store.UpdateTruck(ctx, stored); err != nil {
		zap.L().Warn("pipeline: persisting quality score failed",
			zap.String("truck_id", stored.ID),
			zap.Error(err),
		)
		return
	}
	zap.L().Debug("pipeline: quality score stamped",
		zap.String("truck_id", stored.ID),
		zap.Float64("score", result.Score),
		zap.String("grade", string(result.Grade)),
	)
}

// applyUpdate refreshes a stored record with a newer extraction: the fresh
// candidate's non-empty fields win, source URLs union, review counts keep
// the maximum.
func applyUpdate(target *model.StoredTruck, fresh *model.FoodTruck) {
	if fresh.Name != "" {
		target.Name = fresh.Name
	}
	if fresh.Description != "" {
		target.Description = fresh.Description
	}
	if fresh.PriceRange != "" {
		target.PriceRange = fresh.PriceRange
	}
	if fresh.CurrentLocation != nil {
		target.CurrentLocation = fresh.CurrentLocation
	}
	if len(fresh.CuisineType) > 0 {
		target.CuisineType = fresh.CuisineType
	}
	if len(fresh.Specialties) > 0 {
		target.Specialties = fresh.Specialties
	}
	if len(fresh.ScheduledLocations) > 0 {
		target.ScheduledLocations = fresh.ScheduledLocations
	}
	if len(fresh.OperatingHours) > 0 {
		target.OperatingHours = fresh.OperatingHours
	}
	if len(fresh.Menu) > 0 {
		target.Menu = fresh.Menu
	}

	if fresh.ContactInfo.Phone != "" {
		target.ContactInfo.Phone = fresh.ContactInfo.Phone
	}
	if fresh.ContactInfo.Email != "" {
		target.ContactInfo.Email = fresh.ContactInfo.Email
	}
	if fresh.ContactInfo.Website != "" {
		target.ContactInfo.Website = fresh.ContactInfo.Website
	}
	if !fresh.SocialMedia.Empty() {
		target.SocialMedia = fresh.SocialMedia
	}

	target.SourceURLs = unionURLs(target.SourceURLs, fresh.SourceURLs)
	if fresh.ReviewCount > target.ReviewCount {
		target.ReviewCount = fresh.ReviewCount
	}
	target.LastScrapedAt = fresh.LastScrapedAt
}

func unionURLs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// entityKey derives the lock key for a candidate whose stored identity is
// not yet known.
func entityKey(t *model.FoodTruck) string {
	return strings.ToLower(strings.TrimSpace(t.Name))
}

// timeoutErr rewraps err with an explicit timeout message when the running
// duration ceiling expired, so the job's error history shows why it failed.
func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return eris.Wrap(err, "pipeline: job exceeded maximum running duration")
	}
	return err
}
