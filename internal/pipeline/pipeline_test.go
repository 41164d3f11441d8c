package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/streeteats/ingest-cli/internal/model"
	"github.com/streeteats/ingest-cli/internal/store"
	"github.com/streeteats/ingest-cli/pkg/extract"
	"github.com/streeteats/ingest-cli/pkg/fetch"
)

// memStore is an in-memory store.Store for pipeline tests.
type memStore struct {
	mu     sync.Mutex
	trucks map[string]*model.StoredTruck
	jobs   map[string]*model.ScrapingJob

	createTruckErr error
	updateJobErr   error
}

func newMemStore() *memStore {
	return &memStore{
		trucks: make(map[string]*model.StoredTruck),
		jobs:   make(map[string]*model.ScrapingJob),
	}
}

func (m *memStore) CreateTruck(ctx context.Context, truck model.FoodTruck) (*model.StoredTruck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTruckErr != nil {
		return nil, m.createTruckErr
	}
	now := time.Now().UTC()
	stored := &model.StoredTruck{
		FoodTruck:          truck,
		ID:                 uuid.New().String(),
		CreatedAt:          now,
		UpdatedAt:          now,
		VerificationStatus: model.VerificationPending,
	}
	m.trucks[stored.ID] = stored
	cp := *stored
	return &cp, nil
}

func (m *memStore) GetTruck(ctx context.Context, id string) (*model.StoredTruck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trucks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) GetTruckByURL(ctx context.Context, sourceURL string) (*model.StoredTruck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trucks {
		for _, u := range t.SourceURLs {
			if u == sourceURL {
				cp := *t
				return &cp, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateTruck(ctx context.Context, truck *model.StoredTruck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trucks[truck.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *truck
	m.trucks[truck.ID] = &cp
	return nil
}

func (m *memStore) DeleteTruck(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trucks[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.trucks, id)
	return nil
}

func (m *memStore) ListTrucks(ctx context.Context, filter store.TruckFilter) ([]model.StoredTruck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StoredTruck
	for _, t := range m.trucks {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memStore) CreateJob(ctx context.Context, targetURL string, priority int, scheduledAt time.Time) (*model.ScrapingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &model.ScrapingJob{
		ID:          uuid.New().String(),
		TargetURL:   targetURL,
		Status:      model.JobStatusPending,
		Priority:    priority,
		ScheduledAt: scheduledAt.UTC(),
		MaxRetries:  model.DefaultMaxRetries,
	}
	m.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (m *memStore) GetJob(ctx context.Context, id string) (*model.ScrapingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) UpdateJob(ctx context.Context, job *model.ScrapingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateJobErr != nil {
		return m.updateJobErr
	}
	if _, ok := m.jobs[job.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]model.ScrapingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ScrapingJob
	for _, j := range m.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.TargetURL != "" && j.TargetURL != filter.TargetURL {
			continue
		}
		out = append(out, *j)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) DueJobs(ctx context.Context, limit int) ([]model.ScrapingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var out []model.ScrapingJob
	for _, j := range m.jobs {
		if j.Status == model.JobStatusPending && !j.ScheduledAt.After(now) {
			out = append(out, *j)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Close() error                      { return nil }

func (m *memStore) truckCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trucks)
}

// fakeFetcher serves canned markdown per URL. failFirst makes the first N
// calls fail to exercise the retry path.
type fakeFetcher struct {
	mu        sync.Mutex
	pages     map[string]string
	err       error
	failFirst int
	calls     int
}

func (f *fakeFetcher) Fetch(ctx context.Context, targetURL string) (*fetch.Page, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	if err == nil && f.calls <= f.failFirst {
		err = eris.Errorf("transient failure %d", f.calls)
	}
	md, ok := f.pages[targetURL]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Errorf("no page for %s", targetURL)
	}
	return &fetch.Page{URL: targetURL, Markdown: md}, nil
}

// fakeExtractor returns canned trucks keyed by source URL.
type fakeExtractor struct {
	trucks map[string]*model.FoodTruck
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, markdown, sourceURL string) (*model.FoodTruck, error) {
	if f.err != nil {
		return nil, f.err
	}
	truck, ok := f.trucks[sourceURL]
	if !ok {
		return nil, eris.Errorf("no extraction for %s", sourceURL)
	}
	cp := *truck
	cp.SourceURLs = []string{sourceURL}
	cp.LastScrapedAt = time.Now().UTC()
	return &cp, nil
}

var (
	_ fetch.Client   = (*fakeFetcher)(nil)
	_ extract.Client = (*fakeExtractor)(nil)
	_ store.Store    = (*memStore)(nil)
)

func listAll() store.JobFilter { return store.JobFilter{} }
