package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gradsync/internal/dates"
	"github.com/sells-group/gradsync/internal/model"
)

// Row-level failures. Callers skip the entry and keep going.
var (
	ErrTooFewCells  = eris.New("extract: entry has too few cells")
	ErrNoIdentifier = eris.New("extract: entry has no result permalink")
)

var (
	resultHrefRe = regexp.MustCompile(`/result/\d+`)
	trailingIDRe = regexp.MustCompile(`/(\d+)/?$`)
	decisionOnRe = regexp.MustCompile(`(?i)\bon\s+(.*)`)
	numberRe     = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// Record builds the applicant record for e. dateAdded is the resolved
// listing date; its year anchors a decision date written without one.
// Relative permalinks are resolved against base.
func (e Entry) Record(dateAdded model.Date, base *url.URL) (model.ApplicantRecord, error) {
	cells := e.cells()
	if cells.Length() <= 4 {
		return model.ApplicantRecord{}, ErrTooFewCells
	}

	link := permalink(cells.Eq(4), base)
	id, ok := ExternalID(link)
	if !ok {
		return model.ApplicantRecord{}, ErrNoIdentifier
	}

	rec := model.ApplicantRecord{
		ExternalID:  id,
		Institution: text(cells.Eq(0)),
		DateAdded:   dateAdded,
		SourceURL:   link,
	}
	rec.Program, rec.Degree = SplitProgram(cells.Eq(1))

	status, rawDecision := SplitStatus(text(cells.Eq(3)))
	rec.Status = status
	if s := dates.FormatDecisionDate(rawDecision, dateAdded.Year()); s != "" {
		if d, err := model.ParseDate(s); err == nil {
			rec.DecisionDate = &d
		}
	}

	if e.detail != nil {
		ApplyBadges(&rec, Badges(e.detail))
	}
	if e.comment != nil {
		if p := e.comment.Find("p").First(); p.Length() > 0 {
			c := text(p)
			rec.Comments = &c
		}
	}
	return rec, nil
}

func permalink(cell *goquery.Selection, base *url.URL) string {
	var href string
	cell.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h := a.AttrOr("href", "")
		if resultHrefRe.MatchString(h) {
			href = h
			return false
		}
		return true
	})
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// ExternalID pulls the trailing numeric path segment out of a result
// permalink.
func ExternalID(link string) (int64, bool) {
	if link == "" {
		return 0, false
	}
	u, err := url.Parse(link)
	if err != nil {
		return 0, false
	}
	m := trailingIDRe.FindStringSubmatch(u.Path)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// SplitStatus classifies decision-cell text and returns the raw text
// following "on", if any.
func SplitStatus(cellText string) (model.Status, string) {
	status := model.ClassifyStatus(cellText)
	m := decisionOnRe.FindStringSubmatch(cellText)
	if m == nil {
		return status, ""
	}
	return status, strings.TrimSpace(m[1])
}

// SplitProgram reads the program from the first span of the cell and the
// degree from the last, when there is more than one.
func SplitProgram(cell *goquery.Selection) (program, degree string) {
	spans := cell.Find("span")
	if spans.Length() == 0 {
		return "", ""
	}
	program = text(spans.First())
	if spans.Length() > 1 {
		degree = text(spans.Last())
	}
	return program, degree
}
