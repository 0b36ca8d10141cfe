package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/gradsync/internal/model"
)

// Badges returns the text of every badge fragment in a detail row.
func Badges(row *goquery.Selection) []string {
	var out []string
	row.Find(`div[class*="tw-inline-flex"]`).Each(func(_ int, s *goquery.Selection) {
		out = append(out, text(s))
	})
	return out
}

// ApplyBadges sets the optional metric fields of rec from badge texts.
// GRE V and GRE AW are matched before plain GRE. Badges that match
// nothing, or whose number does not parse, are ignored.
func ApplyBadges(rec *model.ApplicantRecord, badges []string) {
	for _, b := range badges {
		switch {
		case strings.Contains(b, "GRE V"):
			if v, ok := firstInt(b); ok {
				rec.GREVerbal = &v
			}
		case strings.Contains(b, "GRE AW"):
			if v, ok := firstFloat(b); ok {
				rec.GREAW = &v
			}
		case strings.Contains(b, "GRE"):
			if v, ok := firstInt(b); ok {
				rec.GRE = &v
			}
		case strings.Contains(b, "GPA"):
			if v, ok := firstFloat(b); ok {
				rec.GPA = &v
			}
		default:
			if st := model.ParseStudentType(b); st != model.StudentTypeUnknown {
				rec.StudentType = st
			} else if strings.Contains(b, "Fall") || strings.Contains(b, "Spring") {
				rec.Term = b
			}
		}
	}
}

func firstFloat(s string) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func firstInt(s string) (int, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return v, true
}
