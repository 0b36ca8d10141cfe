package model

import "time"

// RunStatus represents the current state of a sync run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one pipeline invocation recorded in the sync ledger.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *RunResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// RunResult holds the outcome of a pipeline invocation.
type RunResult struct {
	Aborted      bool   `json:"aborted"`    // robots.txt disallowed the crawl
	ColdStart    bool   `json:"cold_start"` // store was empty or unreadable
	Watermark    string `json:"watermark"`  // date the crawl was bounded by
	PagesFetched int    `json:"pages_fetched"`
	StopReason   string `json:"stop_reason"`
	NewRecords   int    `json:"new_records"`
	Inserted     int64  `json:"inserted"`
	SkippedLines int    `json:"skipped_lines,omitempty"` // malformed batch lines
}

// Watermark is the crawl boundary derived from the store: the latest
// date_added and the identifiers already present on that date.
type Watermark struct {
	Date      Date
	Known     map[int64]struct{}
	ColdStart bool
}

// IsKnown reports whether id is already synced on the watermark date.
func (w Watermark) IsKnown(id int64) bool {
	_, ok := w.Known[id]
	return ok
}
