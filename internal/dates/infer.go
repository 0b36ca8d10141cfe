// Package dates resolves the partial, inconsistently formatted dates that
// appear in result listings into absolute calendar dates.
package dates

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/gradsync/internal/model"
)

// Layouts that carry a year, tried in order.
var withYearLayouts = []string{
	"2 Jan 06",
	"2 Jan 2006",
	"January 2, 2006",
}

// Day and month with no year. Parsed against a leap placeholder year so that
// 29 Feb is accepted.
const (
	noYearLayout    = "2 Jan 2006"
	placeholderYear = 2000
)

// entry is one position in the inference sequence.
type entry struct {
	month    time.Month
	day      int
	year     int
	valid    bool // the raw string parsed at all
	inferred bool // year still unknown
}

func (e *entry) date() (model.Date, bool) {
	if !e.valid || e.inferred {
		return model.Date{}, false
	}
	return e.withYear(e.year)
}

// withYear returns the candidate date for e placed in year, and false when
// the day does not exist in that year (29 Feb outside a leap year).
func (e *entry) withYear(year int) (model.Date, bool) {
	d := model.NewDate(year, e.month, e.day)
	if d.Month() != e.month || d.Day() != e.day {
		return model.Date{}, false
	}
	return d, true
}

func parseEntry(raw string) entry {
	raw = strings.TrimSpace(raw)
	for _, layout := range withYearLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return entry{month: t.Month(), day: t.Day(), year: t.Year(), valid: true}
		}
	}
	if raw == "" {
		return entry{}
	}
	t, err := time.Parse(noYearLayout, raw+" "+strconv.Itoa(placeholderYear))
	if err != nil {
		return entry{}
	}
	return entry{month: t.Month(), day: t.Day(), valid: true, inferred: true}
}

// InferYears resolves each raw date string to "YYYY-MM-DD", filling in any
// missing year from its neighbours. See InferYearsAt.
func InferYears(raw []string) []string {
	return InferYearsAt(raw, time.Now())
}

// InferYearsAt resolves an ordered sequence of raw date strings. Strings with
// a year are taken as-is; day+month strings borrow the year of the nearest
// dated entry before them, or failing that the nearest one after them,
// adjusted by one year where the borrowed year would break the chronology
// with the adjacent entry. Entries with no anchor on either side
// get now's year. Unparseable strings resolve to "" and do not affect their
// neighbours. The result has the same length and order as raw.
func InferYearsAt(raw []string, now time.Time) []string {
	entries := make([]entry, len(raw))
	for i, s := range raw {
		entries[i] = parseEntry(s)
	}

	forwardPass(entries)
	backwardPass(entries)

	out := make([]string, len(entries))
	for i := range entries {
		e := &entries[i]
		if !e.valid {
			continue
		}
		if e.inferred {
			e.year = now.Year()
			e.inferred = false
		}
		if d, ok := e.withYear(e.year); ok {
			out[i] = d.String()
		}
	}
	return out
}

// forwardPass carries the last known year forward. An inferred entry that
// would land before the previous entry rolls into the next year, and the
// rolled year becomes the carried year.
func forwardPass(entries []entry) {
	lastKnown := 0
	for i := range entries {
		e := &entries[i]
		if !e.valid {
			continue
		}
		if !e.inferred {
			lastKnown = e.year
			continue
		}
		if lastKnown == 0 {
			continue
		}
		if candidate, ok := e.withYear(lastKnown); ok && i > 0 {
			if prev, ok := entries[i-1].date(); ok && candidate.Before(prev) {
				lastKnown++
			}
		}
		e.year = lastKnown
		e.inferred = false
	}
}

// backwardPass carries the next known year backward onto entries the
// forward pass could not anchor. An entry that would land after the
// following entry moves to the previous year.
func backwardPass(entries []entry) {
	nextKnown := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := &entries[i]
		if !e.valid {
			continue
		}
		if !e.inferred {
			nextKnown = e.year
			continue
		}
		if nextKnown == 0 {
			continue
		}
		if candidate, ok := e.withYear(nextKnown); ok && i+1 < len(entries) {
			if next, ok := entries[i+1].date(); ok && candidate.After(next) {
				nextKnown--
			}
		}
		e.year = nextKnown
		e.inferred = false
	}
}
