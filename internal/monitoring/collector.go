package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gradsync/internal/model"
	"github.com/sells-group/gradsync/internal/store"
)

// ledgerScanLimit caps how many recent runs a snapshot reads.
const ledgerScanLimit = 1000

// MetricsSnapshot holds a point-in-time view of sync health.
type MetricsSnapshot struct {
	// Sync runs started within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunsAborted  int     `json:"runs_aborted"`
	FailRate     float64 `json:"fail_rate"`
	Inserted     int64   `json:"inserted"`

	// Most recent completed, non-aborted run, regardless of the window.
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`

	Applicants int64 `json:"applicants"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// HoursSinceSuccess returns the age of the last successful sync, or -1 if
// none has ever succeeded.
func (s *MetricsSnapshot) HoursSinceSuccess() float64 {
	if s.LastSuccessAt == nil {
		return -1
	}
	return s.CollectedAt.Sub(*s.LastSuccessAt).Hours()
}

// LedgerReader is the part of the store the collector reads.
type LedgerReader interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	CountApplicants(ctx context.Context) (int64, error)
}

// Collector gathers metrics from the run ledger.
type Collector struct {
	store LedgerReader
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st LedgerReader) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot of sync metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Newest first.
	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: ledgerScanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		succeeded := r.Status == model.RunStatusComplete && (r.Result == nil || !r.Result.Aborted)
		if succeeded && snap.LastSuccessAt == nil {
			at := r.StartedAt
			if r.CompletedAt != nil {
				at = *r.CompletedAt
			}
			snap.LastSuccessAt = &at
		}
		if r.StartedAt.Before(cutoff) {
			continue
		}

		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Result != nil {
			snap.Inserted += r.Result.Inserted
			if r.Result.Aborted {
				snap.RunsAborted++
			}
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}

	n, err := c.store.CountApplicants(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count applicants")
	}
	snap.Applicants = n

	return snap, nil
}
