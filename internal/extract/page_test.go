package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePage_FindsMainRows(t *testing.T) {
	entries := mustParse(t, threeEntryPage)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"September 23, 2025", "September 22, 2025", "21 Sep"}, RawDates(entries))
}

func TestParsePage_MissingTable(t *testing.T) {
	_, err := ParsePage(strings.NewReader(`<html><body><p>This is not the page you are looking for.</p></body></html>`))
	assert.True(t, errors.Is(err, ErrNoResults))
}

func TestParsePage_NoMainRows(t *testing.T) {
	html := `<table><tbody><tr><td colspan="5">No more results found on this page.</td></tr></tbody></table>`
	entries := mustParse(t, html)
	assert.Empty(t, entries)
}

func TestParsePage_EmptyBody(t *testing.T) {
	_, err := ParsePage(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrNoResults))
}

func TestRawDate_ShortRow(t *testing.T) {
	html := `<table><tbody><tr><td>a</td><td>b</td></tr></tbody></table>`
	entries := mustParse(t, html)
	require.Len(t, entries, 1)
	assert.Equal(t, "", entries[0].RawDate())
}

func TestRawDate_CollapsesWhitespace(t *testing.T) {
	html := `<table><tbody><tr><td>a</td><td>b</td><td>
		30   Dec
	</td></tr></tbody></table>`
	entries := mustParse(t, html)
	require.Len(t, entries, 1)
	assert.Equal(t, "30 Dec", entries[0].RawDate())
}
