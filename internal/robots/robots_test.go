package robots

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/gradsync/internal/fetcher"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newChecker(agent string) *Checker {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         agent,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
	})
	return NewChecker(f, agent)
}

const rules = `User-agent: *
Disallow: /admin/

User-agent: BadBot
Disallow: /
`

func TestAllowed(t *testing.T) {
	srv := newServer(t, http.StatusOK, rules)

	tests := []struct {
		name   string
		agent  string
		target string
		want   bool
	}{
		{"survey allowed", "gradsync", srv.URL + "/survey/index.php", true},
		{"admin disallowed", "gradsync", srv.URL + "/admin/users", false},
		{"named agent blocked", "BadBot", srv.URL + "/survey/index.php", false},
		{"root path", "gradsync", srv.URL, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := newChecker(tt.agent).Allowed(context.Background(), tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestAllowed_MissingRobotsAllowsAll(t *testing.T) {
	srv := newServer(t, http.StatusNotFound, "")
	ok, err := newChecker("gradsync").Allowed(context.Background(), srv.URL+"/survey/index.php")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowed_ForbiddenRobotsDisallows(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := newServer(t, status, "")
			ok, err := newChecker("gradsync").Allowed(context.Background(), srv.URL+"/survey/index.php")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestAllowed_OtherClientErrorAllowsAll(t *testing.T) {
	srv := newServer(t, http.StatusGone, "")
	ok, err := newChecker("gradsync").Allowed(context.Background(), srv.URL+"/survey/index.php")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowed_ServerErrorDisallows(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, "")
	ok, err := newChecker("gradsync").Allowed(context.Background(), srv.URL+"/survey/index.php")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowed_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ok, err := newChecker("gradsync").Allowed(context.Background(), url+"/survey/index.php")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestAllowed_RelativeTarget(t *testing.T) {
	_, err := newChecker("gradsync").Allowed(context.Background(), "/survey/index.php")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not absolute")
}

func TestCheck(t *testing.T) {
	srv := newServer(t, http.StatusOK, rules)
	c := newChecker("gradsync")

	assert.NoError(t, c.Check(context.Background(), srv.URL+"/survey/index.php"))

	err := c.Check(context.Background(), srv.URL+"/admin/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisallowed))
}
