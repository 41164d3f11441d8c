package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/streeteats/ingest-cli/internal/config"
	"github.com/streeteats/ingest-cli/internal/dedupe"
	"github.com/streeteats/ingest-cli/internal/pipeline"
	"github.com/streeteats/ingest-cli/internal/quality"
	"github.com/streeteats/ingest-cli/internal/store"
	"github.com/streeteats/ingest-cli/pkg/extract"
	"github.com/streeteats/ingest-cli/pkg/fetch"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "streeteats.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// pipelineEnv bundles everything a command needs to run ingestion.
type pipelineEnv struct {
	Store       store.Store
	Scorer      *quality.Scorer
	Coordinator *pipeline.Coordinator
}

func (e *pipelineEnv) Close() {
	_ = e.Store.Close()
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	fetchOpts := []fetch.Option{}
	if cfg.Fetch.BaseURL != "" {
		fetchOpts = append(fetchOpts, fetch.WithBaseURL(cfg.Fetch.BaseURL))
	}
	if cfg.Fetch.TimeoutSecs > 0 {
		fetchOpts = append(fetchOpts, fetch.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		}))
	}
	fetcher := fetch.NewClient(cfg.Fetch.Key, fetchOpts...)

	extractor := extract.NewClient(cfg.Anthropic.Key, extract.Config{
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
	})

	resolver := dedupe.NewResolver(st, dedupeConfig(cfg.Dedupe))
	scorer := quality.NewScorer(quality.Config(cfg.Quality))

	orch := pipeline.NewOrchestrator(st, fetcher, extractor, resolver, scorer, cfg.Pipeline)
	coord := pipeline.NewCoordinator(st, orch, cfg.Pipeline)

	return &pipelineEnv{Store: st, Scorer: scorer, Coordinator: coord}, nil
}

// dedupeConfig overlays the configured thresholds on the standard weights.
func dedupeConfig(c config.DedupeConfig) dedupe.Config {
	dc := dedupe.DefaultConfig()
	if c.OverallThreshold > 0 {
		dc.OverallThreshold = c.OverallThreshold
	}
	if c.HighConfidence > 0 {
		dc.HighConfidence = c.HighConfidence
	}
	if c.MediumConfidence > 0 {
		dc.MediumConfidence = c.MediumConfidence
	}
	if c.MergeThreshold > 0 {
		dc.MergeThreshold = c.MergeThreshold
	}
	if c.UpdateThreshold > 0 {
		dc.UpdateThreshold = c.UpdateThreshold
	}
	if c.MaxCandidates > 0 {
		dc.MaxCandidates = c.MaxCandidates
	}
	return dc
}
