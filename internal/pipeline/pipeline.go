// Package pipeline runs one sync end to end: resolve the watermark, crawl,
// write the raw batch, enrich, write the enriched batch, and merge it.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gradsync/internal/batch"
	"github.com/sells-group/gradsync/internal/crawl"
	"github.com/sells-group/gradsync/internal/enrich"
	"github.com/sells-group/gradsync/internal/model"
)

// ErrBusy is returned when a run is already in progress.
var ErrBusy = errors.New("pipeline: run already in progress")

// Store is what a sync run reads and writes.
type Store interface {
	crawl.WatermarkReader
	MergeApplicants(ctx context.Context, recs []model.ApplicantRecord) (int64, error)
	StartRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, result *model.RunResult, runErr error) error
}

// Crawler collects records newer than a watermark.
type Crawler interface {
	Run(ctx context.Context, wm model.Watermark) *crawl.Result
}

// Config locates the batch files and the cold-start boundary.
type Config struct {
	RawPath      string
	EnrichedPath string
	Epoch        model.Date
}

// Pipeline wires the sync steps together. It is safe for concurrent use;
// overlapping runs are refused with ErrBusy.
type Pipeline struct {
	cfg      Config
	store    Store
	crawler  Crawler
	enricher enrich.Enricher
	guard    Guard
}

// New creates a Pipeline. A nil enricher passes records through.
func New(cfg Config, st Store, c Crawler, e enrich.Enricher) *Pipeline {
	if e == nil {
		e = enrich.Noop{}
	}
	if cfg.RawPath == "" {
		cfg.RawPath = "data/raw.jsonl"
	}
	if cfg.EnrichedPath == "" {
		cfg.EnrichedPath = "data/enriched.jsonl"
	}
	return &Pipeline{cfg: cfg, store: st, crawler: c, enricher: e}
}

// Busy reports whether a run is in progress.
func (p *Pipeline) Busy() bool {
	return p.guard.Busy()
}

// Run executes one sync and blocks until it finishes.
func (p *Pipeline) Run(ctx context.Context) (*model.RunResult, error) {
	release, ok := p.guard.TryAcquire()
	if !ok {
		return nil, ErrBusy
	}
	defer release()
	return p.run(ctx)
}

// Start launches a sync in the background and returns immediately. The
// guard is claimed before Start returns, so Busy is true right away.
func (p *Pipeline) Start(ctx context.Context) error {
	release, ok := p.guard.TryAcquire()
	if !ok {
		return ErrBusy
	}
	go func() {
		defer release()
		if _, err := p.run(ctx); err != nil {
			zap.L().Error("background sync failed", zap.Error(err))
		}
	}()
	return nil
}

func (p *Pipeline) run(ctx context.Context) (*model.RunResult, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	start := time.Now()

	var runID string
	if run, err := p.store.StartRun(ctx); err != nil {
		log.Warn("could not record run start", zap.Error(err))
	} else {
		runID = run.ID
		log = log.With(zap.String("run_id", runID))
	}

	res := &model.RunResult{}
	fail := func(err error) (*model.RunResult, error) {
		log.Error("sync failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		if runID != "" {
			if ferr := p.store.FailRun(context.WithoutCancel(ctx), runID, res, err); ferr != nil {
				log.Warn("could not record run failure", zap.Error(ferr))
			}
		}
		return res, err
	}

	wm := crawl.ResolveWatermark(ctx, p.store, p.cfg.Epoch)
	res.ColdStart = wm.ColdStart
	res.Watermark = wm.Date.String()

	cr := p.crawler.Run(ctx, wm)
	res.Aborted = cr.Aborted
	res.PagesFetched = cr.Pages
	res.StopReason = string(cr.StopReason)
	res.NewRecords = len(cr.Records)

	if cr.Aborted {
		log.Warn("crawl aborted, nothing to sync", zap.String("stop_reason", res.StopReason))
		return p.complete(ctx, runID, res, log, start)
	}

	if err := batch.WriteFile(p.cfg.RawPath, cr.Records); err != nil {
		return fail(err)
	}
	if len(cr.Records) == 0 {
		log.Info("no new records, skipping enrichment and merge")
		return p.complete(ctx, runID, res, log, start)
	}

	enriched, err := p.step(log, "enrich", func() ([]model.ApplicantRecord, error) {
		return p.enricher.Enrich(ctx, cr.Records)
	})
	if err != nil {
		return fail(eris.Wrap(err, "pipeline: enrich"))
	}
	if err := batch.WriteFile(p.cfg.EnrichedPath, enriched); err != nil {
		return fail(err)
	}

	loaded, err := batch.ReadFile(ctx, p.cfg.EnrichedPath)
	if err != nil {
		return fail(err)
	}
	res.SkippedLines = loaded.Skipped

	mergeStart := time.Now()
	inserted, err := p.store.MergeApplicants(ctx, loaded.Records)
	if err != nil {
		return fail(eris.Wrap(err, "pipeline: merge"))
	}
	res.Inserted = inserted
	log.Info("merge complete",
		zap.Int("rows", len(loaded.Records)),
		zap.Int64("inserted", inserted),
		zap.Duration("elapsed", time.Since(mergeStart)),
	)

	return p.complete(ctx, runID, res, log, start)
}

func (p *Pipeline) step(log *zap.Logger, name string, fn func() ([]model.ApplicantRecord, error)) ([]model.ApplicantRecord, error) {
	start := time.Now()
	out, err := fn()
	if err != nil {
		return nil, err
	}
	log.Info("step complete",
		zap.String("step", name),
		zap.Int("records", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (p *Pipeline) complete(ctx context.Context, runID string, res *model.RunResult, log *zap.Logger, start time.Time) (*model.RunResult, error) {
	if runID != "" {
		if err := p.store.CompleteRun(context.WithoutCancel(ctx), runID, res); err != nil {
			log.Warn("could not record run completion", zap.Error(err))
		}
	}
	log.Info("sync complete",
		zap.Bool("cold_start", res.ColdStart),
		zap.String("watermark", res.Watermark),
		zap.Int("pages", res.PagesFetched),
		zap.String("stop_reason", res.StopReason),
		zap.Int("new_records", res.NewRecords),
		zap.Int64("inserted", res.Inserted),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
