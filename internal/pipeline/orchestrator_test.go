package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streeteats/ingest-cli/internal/config"
	"github.com/streeteats/ingest-cli/internal/dedupe"
	"github.com/streeteats/ingest-cli/internal/model"
	"github.com/streeteats/ingest-cli/internal/quality"
)

const bbqURL = "https://example.com/bbq"

func bbqTruck() *model.FoodTruck {
	return &model.FoodTruck{
		Name:        "Rolling Thunder BBQ",
		Description: "Slow-smoked brisket and pulled pork.",
		CuisineType: []string{"bbq"},
		PriceRange:  model.PriceModerate,
		CurrentLocation: &model.Location{
			Lat: 32.7800, Lng: -79.9301, Address: "99 Market St",
		},
		ContactInfo: model.ContactInfo{Phone: "843-555-0199"},
		Menu:        []model.MenuCategory{{Name: "Plates"}},
	}
}

func testOrchestrator(st *memStore, fetcher *fakeFetcher, extractor *fakeExtractor) *Orchestrator {
	return testOrchestratorWithCfg(st, fetcher, extractor, config.PipelineConfig{
		RetryDelay: time.Millisecond,
		JobTimeout: time.Minute,
	})
}

func testOrchestratorWithCfg(st *memStore, fetcher *fakeFetcher, extractor *fakeExtractor, cfg config.PipelineConfig) *Orchestrator {
	resolver := dedupe.NewResolver(st, dedupe.DefaultConfig())
	scorer := quality.NewScorer(quality.DefaultConfig())
	return NewOrchestrator(st, fetcher, extractor, resolver, scorer, cfg)
}

func pendingJob(st *memStore, t *testing.T, url string) *model.ScrapingJob {
	t.Helper()
	job, err := st.CreateJob(context.Background(), url, 0, time.Now().UTC())
	require.NoError(t, err)
	return job
}

func TestProcess_NewTruckCreated(t *testing.T) {
	st := newMemStore()
	fetcher := &fakeFetcher{pages: map[string]string{bbqURL: "# Rolling Thunder BBQ"}}
	extractor := &fakeExtractor{trucks: map[string]*model.FoodTruck{bbqURL: bbqTruck()}}
	o := testOrchestrator(st, fetcher, extractor)

	job := pendingJob(st, t, bbqURL)
	outcome, err := o.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, dedupe.ActionCreate, outcome.Action)
	assert.NotEmpty(t, outcome.TruckID)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.DataCollected)
	assert.Equal(t, "Rolling Thunder BBQ", job.DataCollected.Name)
	assert.Zero(t, job.RetryCount)

	stored, err := st.GetTruck(context.Background(), outcome.TruckID)
	require.NoError(t, err)
	assert.Greater(t, stored.DataQualityScore, 0.0)
	assert.LessOrEqual(t, stored.DataQualityScore, 1.0)
	assert.Equal(t, model.VerificationPending, stored.VerificationStatus)

	// persisted job state matches the in-memory one
	persisted, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, persisted.Status)
}

func TestProcess_RerunUpdatesInsteadOfDuplicating(t *testing.T) {
	st := newMemStore()
	fetcher := &fakeFetcher{pages: map[string]string{bbqURL: "# Rolling Thunder BBQ"}}
	extractor := &fakeExtractor{trucks: map[string]*model.FoodTruck{bbqURL: bbqTruck()}}
	o := testOrchestrator(st, fetcher, extractor)

	first := pendingJob(st, t, bbqURL)
	_, err := o.Process(context.Background(), first)
	require.NoError(t, err)

	second := pendingJob(st, t, bbqURL)
	outcome, err := o.Process(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, dedupe.ActionUpdate, outcome.Action)
	assert.Equal(t, 1, st.truckCount())
}

func TestProcess_ExhaustsRetriesThenFails(t *testing.T) {
	st := newMemStore()
	fetcher := &fakeFetcher{err: eris.New("fetch exploded")}
	extractor := &fakeExtractor{}
	o := testOrchestrator(st, fetcher, extractor)

	job := pendingJob(st, t, bbqURL)
	job.MaxRetries = 2

	_, err := o.Process(context.Background(), job)
	require.Error(t, err)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, 2, job.RetryCount)
	assert.Len(t, job.Errors, 2)
	assert.True(t, job.Terminal())
	assert.False(t, job.RetryEligible())
	assert.Zero(t, st.truckCount())
}

func TestProcess_RecoversOnRetry(t *testing.T) {
	st := newMemStore()
	fetcher := &fakeFetcher{pages: map[string]string{bbqURL: "# BBQ"}}
	extractor := &fakeExtractor{trucks: map[string]*model.FoodTruck{bbqURL: bbqTruck()}}
	o := testOrchestrator(st, fetcher, extractor)

	// the first two attempts fail, the third succeeds within the budget
	fetcher.failFirst = 2
	job := pendingJob(st, t, bbqURL)

	_, err := o.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.NotEmpty(t, job.Errors)
}

func TestProcess_SameURLRejectedWhileRunning(t *testing.T) {
	st := newMemStore()
	fetcher := &fakeFetcher{pages: map[string]string{bbqURL: "# BBQ"}}
	extractor := &fakeExtractor{trucks: map[string]*model.FoodTruck{bbqURL: bbqTruck()}}
	o := testOrchestrator(st, fetcher, extractor)

	require.True(t, o.urls.TryAcquire(bbqURL))
	defer o.urls.Release(bbqURL)

	job := pendingJob(st, t, bbqURL)
	_, err := o.Process(context.Background(), job)
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)
	assert.Equal(t, model.JobStatusPending, job.Status)
}

func TestProcess_StartedAtSetOnce(t *testing.T) {
	st := newMemStore()
	fetcher := &fakeFetcher{err: eris.New("down")}
	extractor := &fakeExtractor{}
	o := testOrchestrator(st, fetcher, extractor)

	job := pendingJob(st, t, bbqURL)
	job.MaxRetries = 2

	_, err := o.Process(context.Background(), job)
	require.Error(t, err)
	require.NotNil(t, job.StartedAt)

	// the recorded start survives the retry attempts unchanged
	first := *job.StartedAt
	assert.Equal(t, first, *job.StartedAt)
	assert.Nil(t, job.CompletedAt)
}

func TestProcess_ManualReviewFlagsStoredTruck(t *testing.T) {
	st := newMemStore()

	// seed a stored truck that will score ~0.90 against the candidate:
	// same name and phone, 0.30 km apart, no menu or address on either side
	seeded := bbqTruck()
	seeded.Menu = nil
	seeded.CurrentLocation = &model.Location{Lat: 32.7800, Lng: -79.9301}
	seeded.SourceURLs = []string{"https://directory.example.com/bbq"}
	stored, err := st.CreateTruck(context.Background(), *seeded)
	require.NoError(t, err)

	candidate := bbqTruck()
	candidate.Menu = nil
	candidate.CurrentLocation = &model.Location{Lat: 32.7826979, Lng: -79.9301}
	fetcher := &fakeFetcher{pages: map[string]string{bbqURL: "# BBQ"}}
	extractor := &fakeExtractor{trucks: map[string]*model.FoodTruck{bbqURL: candidate}}
	o := testOrchestrator(st, fetcher, extractor)

	job := pendingJob(st, t, bbqURL)
	outcome, err := o.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, dedupe.ActionManualReview, outcome.Action)
	assert.Equal(t, 1, st.truckCount())

	flagged, err := st.GetTruck(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationFlagged, flagged.VerificationStatus)
}

func TestProcess_MergePersistsOntoBestMatch(t *testing.T) {
	st := newMemStore()

	seeded := bbqTruck()
	seeded.SourceURLs = []string{"https://directory.example.com/bbq"}
	stored, err := st.CreateTruck(context.Background(), *seeded)
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]string{bbqURL: "# BBQ"}}
	extractor := &fakeExtractor{trucks: map[string]*model.FoodTruck{bbqURL: bbqTruck()}}
	o := testOrchestrator(st, fetcher, extractor)

	job := pendingJob(st, t, bbqURL)
	outcome, err := o.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, dedupe.ActionMerge, outcome.Action)
	assert.Equal(t, stored.ID, outcome.TruckID)
	assert.Equal(t, 1, st.truckCount())

	merged, err := st.GetTruck(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"https://directory.example.com/bbq", bbqURL},
		merged.SourceURLs,
	)
}

func TestApplyUpdate_FreshFieldsWin(t *testing.T) {
	target := &model.StoredTruck{
		ID: "x",
		FoodTruck: model.FoodTruck{
			Name:        "Old Name",
			Description: "Old description",
			SourceURLs:  []string{"https://a.example.com"},
			ReviewCount: 10,
		},
	}
	fresh := &model.FoodTruck{
		Name:          "New Name",
		SourceURLs:    []string{"https://b.example.com"},
		ReviewCount:   5,
		LastScrapedAt: time.Now().UTC(),
	}

	applyUpdate(target, fresh)

	assert.Equal(t, "New Name", target.Name)
	// fresh empty fields leave the stored value alone
	assert.Equal(t, "Old description", target.Description)
	assert.ElementsMatch(t,
		[]string{"https://a.example.com", "https://b.example.com"},
		target.SourceURLs,
	)
	// review count never decreases
	assert.Equal(t, 10, target.ReviewCount)
}
