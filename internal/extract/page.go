// Package extract turns a results listing page into applicant records.
package extract

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// ErrNoResults is returned when a page has no results table at all.
var ErrNoResults = eris.New("extract: results table not found")

// Entry is one listing: the primary row plus the optional badge and
// comment rows that follow it.
type Entry struct {
	main    *goquery.Selection
	detail  *goquery.Selection
	comment *goquery.Selection
}

// ParsePage returns the entries of a listing page in page order. A page
// whose table holds no multi-cell rows yields an empty slice.
func ParsePage(r io.Reader) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}

	tbody := doc.Find("tbody").First()
	if tbody.Length() == 0 {
		return nil, ErrNoResults
	}

	var entries []Entry
	tbody.ChildrenFiltered("tr").Each(func(_ int, row *goquery.Selection) {
		if cellCount(row) <= 1 {
			return
		}
		e := Entry{main: row}
		if next := row.NextFiltered("tr"); next.Length() > 0 && cellCount(next) == 1 {
			e.detail = next
			if after := next.NextFiltered("tr"); after.Length() > 0 && cellCount(after) == 1 {
				e.comment = after
			}
		}
		entries = append(entries, e)
	})
	return entries, nil
}

// RawDates returns the date-added text of each entry, in order.
func RawDates(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RawDate()
	}
	return out
}

// RawDate is the date-added cell text exactly as listed.
func (e Entry) RawDate() string {
	cells := e.cells()
	if cells.Length() < 3 {
		return ""
	}
	return text(cells.Eq(2))
}

func (e Entry) cells() *goquery.Selection {
	return e.main.ChildrenFiltered("td")
}

func cellCount(row *goquery.Selection) int {
	return row.ChildrenFiltered("td").Length()
}

// text returns the selection's text with runs of whitespace collapsed.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
