package dates

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/gradsync/internal/model"
)

var decisionLayouts = []string{
	"2 Jan 06",
	"2 Jan 2006",
}

// FormatDecisionDate parses the text following "on" in a decision cell
// (e.g. "23 Sep" or "23 Sep 25") into "YYYY-MM-DD". Text without a year
// takes referenceYear. Returns "" when the text cannot be parsed or when
// either input is empty.
func FormatDecisionDate(raw string, referenceYear int) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || referenceYear == 0 {
		return ""
	}
	for _, layout := range decisionLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(model.DateLayout)
		}
	}
	t, err := time.Parse("2 Jan 2006", raw+" "+strconv.Itoa(referenceYear))
	if err != nil {
		return ""
	}
	return t.Format(model.DateLayout)
}
