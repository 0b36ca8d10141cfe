// Package robots answers whether the configured client may fetch a URL,
// according to the host's robots.txt.
package robots

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/sells-group/gradsync/internal/fetcher"
)

// ErrDisallowed is returned by Check when robots.txt forbids the target.
var ErrDisallowed = eris.New("robots: fetching disallowed")

// Checker evaluates robots.txt rules for one client identity.
type Checker struct {
	fetcher   fetcher.Fetcher
	userAgent string
}

// NewChecker creates a Checker that fetches robots.txt through f and tests
// rules for userAgent.
func NewChecker(f fetcher.Fetcher, userAgent string) *Checker {
	return &Checker{fetcher: f, userAgent: userAgent}
}

// Allowed fetches robots.txt for target's host and reports whether target
// may be fetched. 401 and 403 disallow everything, any other 4xx allows
// everything, and a 5xx disallows everything. A transport failure returns an
// error and false.
func (c *Checker) Allowed(ctx context.Context, target string) (bool, error) {
	u, err := url.Parse(target)
	if err != nil {
		return false, eris.Wrapf(err, "robots: parse target %q", target)
	}
	if u.Scheme == "" || u.Host == "" {
		return false, eris.Errorf("robots: target %q is not absolute", target)
	}

	robotsURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String()
	page, err := c.fetcher.Get(ctx, robotsURL)
	if err != nil {
		return false, eris.Wrap(err, "robots: fetch robots.txt")
	}

	if page.StatusCode == http.StatusUnauthorized || page.StatusCode == http.StatusForbidden {
		zap.L().Warn("robots: robots.txt access denied, treating as disallow all",
			zap.String("robots_url", robotsURL),
			zap.Int("status", page.StatusCode),
		)
		return false, nil
	}

	data, err := robotstxt.FromStatusAndBytes(page.StatusCode, page.Body)
	if err != nil {
		return false, eris.Wrapf(err, "robots: parse robots.txt (status %d)", page.StatusCode)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	allowed := data.TestAgent(path, c.userAgent)
	zap.L().Debug("robots: checked",
		zap.String("robots_url", robotsURL),
		zap.Int("status", page.StatusCode),
		zap.String("path", path),
		zap.String("user_agent", c.userAgent),
		zap.Bool("allowed", allowed),
	)
	return allowed, nil
}

// Check is Allowed folded into a single error: nil when target may be
// fetched, ErrDisallowed when it may not, or the underlying failure.
func (c *Checker) Check(ctx context.Context, target string) error {
	ok, err := c.Allowed(ctx, target)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ErrDisallowed, "robots: %s for %q", target, c.userAgent)
	}
	return nil
}
