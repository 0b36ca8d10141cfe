package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gradsync/internal/crawl"
	"github.com/sells-group/gradsync/internal/enrich"
	"github.com/sells-group/gradsync/internal/fetcher"
	"github.com/sells-group/gradsync/internal/pipeline"
	"github.com/sells-group/gradsync/internal/robots"
	"github.com/sells-group/gradsync/internal/store"
	anthropicpkg "github.com/sells-group/gradsync/pkg/anthropic"
)

// syncEnv holds the store and pipeline needed by the sync and serve
// commands.
type syncEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *syncEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st.WithRetry(cfg.Store.Retry), nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return nil, err
		}
		return st.WithRetry(cfg.Store.Retry), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens the store and applies migrations. Callers should defer
// Close.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initCrawler builds the HTTP fetcher, robots checker, and crawler for the
// configured source.
func initCrawler() (*crawl.Crawler, error) {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         cfg.Source.UserAgent,
		Timeout:           time.Duration(cfg.Source.TimeoutSecs) * time.Second,
		MaxRetries:        cfg.Source.MaxRetries,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
	})
	return crawl.New(crawl.Config{
		BaseURL:    cfg.Source.BaseURL,
		SurveyPath: cfg.Source.SurveyPath,
		PageLimit:  cfg.Source.PageLimit,
	}, f, robots.NewChecker(f, f.UserAgent()))
}

func initEnricher() (enrich.Enricher, error) {
	var client anthropicpkg.Client
	if cfg.Enrich.Provider == enrich.ProviderAnthropic {
		client = anthropicpkg.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL)
	}
	return enrich.New(cfg.Enrich, client, enrich.LLMOptions{
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		Breaker:   cfg.Anthropic.Breaker,
	})
}

// initSync validates config for mode and wires store, crawler, enricher and
// pipeline. Callers should defer env.Close().
func initSync(ctx context.Context, mode string) (*syncEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	epoch, err := cfg.Source.EpochDate()
	if err != nil {
		return nil, err
	}

	crawler, err := initCrawler()
	if err != nil {
		return nil, err
	}
	enricher, err := initEnricher()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(pipeline.Config{
		RawPath:      cfg.Batch.RawPath,
		EnrichedPath: cfg.Batch.EnrichedPath,
		Epoch:        epoch,
	}, st, crawler, enricher)

	return &syncEnv{Store: st, Pipeline: p}, nil
}
