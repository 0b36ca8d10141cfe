// Package crawl walks the paginated results listing from newest to oldest
// and collects the records not yet in the store.
package crawl

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gradsync/internal/dates"
	"github.com/sells-group/gradsync/internal/extract"
	"github.com/sells-group/gradsync/internal/fetcher"
	"github.com/sells-group/gradsync/internal/model"
)

// StopReason names the terminal state a crawl ended in.
type StopReason string

const (
	StopDisallowed  StopReason = "robots_disallowed"
	StopRobotsError StopReason = "robots_unavailable"
	StopHTTPStatus  StopReason = "http_status"
	StopNetwork     StopReason = "network_error"
	StopNoTable     StopReason = "no_results_table"
	StopBlocked     StopReason = "blocked"
	StopNoRows      StopReason = "no_rows"
	StopWatermark   StopReason = "watermark"
	StopPageLimit   StopReason = "page_limit"
)

// Permission decides whether the target may be crawled.
type Permission interface {
	Allowed(ctx context.Context, target string) (bool, error)
}

// Config locates the listing and bounds the crawl.
type Config struct {
	BaseURL    string // e.g. https://www.thegradcafe.com/
	SurveyPath string // listing path relative to BaseURL
	PageLimit  int
}

// Result is what a crawl produced before it stopped.
type Result struct {
	Records    []model.ApplicantRecord
	Pages      int
	StopReason StopReason
	Aborted    bool // permission check failed; nothing was fetched
}

// Crawler runs one sequential crawl at a time. It holds no state between
// runs.
type Crawler struct {
	fetcher fetcher.Fetcher
	perm    Permission
	base    *url.URL
	target  *url.URL
	limit   int
	now     func() time.Time
}

// New validates cfg and returns a Crawler.
func New(cfg Config, f fetcher.Fetcher, perm Permission) (*Crawler, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: parse base url %q", cfg.BaseURL)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, eris.Errorf("crawl: base url %q is not absolute", cfg.BaseURL)
	}
	rel, err := url.Parse(cfg.SurveyPath)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: parse survey path %q", cfg.SurveyPath)
	}
	limit := cfg.PageLimit
	if limit <= 0 {
		limit = 100
	}
	return &Crawler{
		fetcher: f,
		perm:    perm,
		base:    base,
		target:  base.ResolveReference(rel),
		limit:   limit,
		now:     time.Now,
	}, nil
}

// Target is the listing URL without a page parameter.
func (c *Crawler) Target() string {
	return c.target.String()
}

func (c *Crawler) pageURL(n int) string {
	u := *c.target
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

// Run checks permission, then fetches pages 1..PageLimit until a page
// fails, runs dry, or reaches a record older than the watermark. Transport
// and markup failures end the crawl with what was gathered so far; they are
// reported through StopReason, never as an error.
func (c *Crawler) Run(ctx context.Context, wm model.Watermark) *Result {
	log := zap.L().With(
		zap.String("component", "crawl"),
		zap.String("target", c.Target()),
		zap.String("watermark", wm.Date.String()),
	)
	res := &Result{}
	start := time.Now()

	allowed, err := c.perm.Allowed(ctx, c.Target())
	switch {
	case err != nil:
		log.Error("robots check failed, aborting", zap.Error(err))
		res.Aborted, res.StopReason = true, StopRobotsError
		return res
	case !allowed:
		log.Warn("crawling disallowed by robots.txt, aborting")
		res.Aborted, res.StopReason = true, StopDisallowed
		return res
	}

	for n := 1; n <= c.limit; n++ {
		reason, stop := c.crawlPage(ctx, n, wm, res, log)
		if stop {
			res.StopReason = reason
			break
		}
	}
	if res.StopReason == "" {
		res.StopReason = StopPageLimit
	}

	log.Info("crawl finished",
		zap.Int("pages", res.Pages),
		zap.Int("records", len(res.Records)),
		zap.String("stop_reason", string(res.StopReason)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res
}

// crawlPage fetches and accumulates page n. It reports whether the crawl
// should stop and why.
func (c *Crawler) crawlPage(ctx context.Context, n int, wm model.Watermark, res *Result, log *zap.Logger) (StopReason, bool) {
	log = log.With(zap.Int("page", n))

	page, err := c.fetcher.Get(ctx, c.pageURL(n))
	if err != nil {
		log.Warn("network error, stopping", zap.Error(err))
		return StopNetwork, true
	}
	if !page.OK() {
		if blocked, kind := fetcher.DetectBlock(page); blocked {
			log.Warn("blocked by source, stopping", zap.String("block_type", string(kind)), zap.Int("status", page.StatusCode))
			return StopBlocked, true
		}
		log.Warn("unexpected status, stopping", zap.Int("status", page.StatusCode))
		return StopHTTPStatus, true
	}
	res.Pages++

	entries, err := extract.ParsePage(bytes.NewReader(page.Body))
	if err != nil {
		if errors.Is(err, extract.ErrNoResults) {
			if blocked, kind := fetcher.DetectBlock(page); blocked {
				log.Warn("challenge page instead of results, stopping", zap.String("block_type", string(kind)))
				return StopBlocked, true
			}
			log.Info("no results table, stopping")
			return StopNoTable, true
		}
		log.Warn("unparseable page, stopping", zap.Error(err))
		return StopNoTable, true
	}
	if len(entries) == 0 {
		log.Info("no entry rows, reached the end")
		return StopNoRows, true
	}

	resolved := dates.InferYearsAt(extract.RawDates(entries), c.now())
	added := 0
	for i, e := range entries {
		if resolved[i] == "" {
			log.Debug("skipping entry with unresolvable date", zap.String("raw", e.RawDate()))
			continue
		}
		d, err := model.ParseDate(resolved[i])
		if err != nil {
			continue
		}
		if d.Before(wm.Date) {
			log.Info("reached entries older than watermark, stopping",
				zap.String("date_added", d.String()),
			)
			return StopWatermark, true
		}

		rec, err := e.Record(d, c.base)
		if err != nil {
			log.Debug("skipping malformed entry", zap.Int("row", i), zap.Error(err))
			continue
		}
		if d.Equal(wm.Date) && wm.IsKnown(rec.ExternalID) {
			continue
		}
		res.Records = append(res.Records, rec)
		added++
	}
	log.Debug("page accumulated", zap.Int("rows", len(entries)), zap.Int("new", added))
	return "", false
}
