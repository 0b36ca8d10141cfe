// Package store persists applicant records and the sync run ledger.
package store

import (
	"context"
	"errors"

	"github.com/sells-group/gradsync/internal/model"
)

// ErrRunNotFound is returned when a ledger id does not exist.
var ErrRunNotFound = errors.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the sync pipeline.
type Store interface {
	// Applicants
	LatestWatermark(ctx context.Context) (model.Watermark, error)
	MergeApplicants(ctx context.Context, recs []model.ApplicantRecord) (int64, error)
	CountApplicants(ctx context.Context) (int64, error)
	Stats(ctx context.Context, q model.StatsQuery) (*model.Stats, error)

	// Run ledger
	StartRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, result *model.RunResult, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// applicantColumns is the insert column order shared by both drivers.
var applicantColumns = []string{
	"pid", "university", "program", "degree", "status",
	"decision_date", "date_added", "term",
	"gpa", "gre", "gre_v", "gre_aw",
	"student_type", "comments", "url",
	"llm_generated_university", "llm_generated_program",
}

const defaultListLimit = 100

// mergeable drops records that cannot be keyed or placed on a date.
func mergeable(recs []model.ApplicantRecord) []model.ApplicantRecord {
	out := make([]model.ApplicantRecord, 0, len(recs))
	for _, r := range recs {
		if r.ExternalID <= 0 || r.DateAdded.IsZero() {
			continue
		}
		out = append(out, r)
	}
	return out
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
