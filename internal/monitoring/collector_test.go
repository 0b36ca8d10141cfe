package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gradsync/internal/model"
	"github.com/sells-group/gradsync/internal/store"
)

// mockLedger implements LedgerReader for testing. runs are newest first.
type mockLedger struct {
	runs     []model.Run
	count    int64
	listErr  error
	countErr error
}

func (m *mockLedger) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (m *mockLedger) CountApplicants(context.Context) (int64, error) {
	return m.count, m.countErr
}

var fixedNow = time.Date(2025, 9, 24, 12, 0, 0, 0, time.UTC)

func run(status model.RunStatus, ago time.Duration, res *model.RunResult) model.Run {
	started := fixedNow.Add(-ago)
	done := started.Add(time.Minute)
	r := model.Run{ID: started.Format(time.RFC3339), Status: status, StartedAt: started, Result: res}
	if status != model.RunStatusRunning {
		r.CompletedAt = &done
	}
	return r
}

func newTestCollector(l LedgerReader) *Collector {
	c := NewCollector(l)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	ledger := &mockLedger{
		count: 1234,
		runs: []model.Run{
			run(model.RunStatusRunning, 5*time.Minute, nil),
			run(model.RunStatusFailed, time.Hour, &model.RunResult{NewRecords: 3}),
			run(model.RunStatusComplete, 2*time.Hour, &model.RunResult{Aborted: true}),
			run(model.RunStatusComplete, 3*time.Hour, &model.RunResult{Inserted: 40}),
			run(model.RunStatusComplete, 6*time.Hour, &model.RunResult{Inserted: 2}),
			// Outside the 24h window.
			run(model.RunStatusFailed, 30*time.Hour, nil),
			run(model.RunStatusComplete, 48*time.Hour, &model.RunResult{Inserted: 500}),
		},
	}

	snap, err := newTestCollector(ledger).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 3, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, 1, snap.RunsAborted)
	assert.InDelta(t, 0.25, snap.FailRate, 0.0001)
	assert.Equal(t, int64(42), snap.Inserted)
	assert.Equal(t, int64(1234), snap.Applicants)
	assert.Equal(t, 24, snap.LookbackHours)

	// The aborted run does not count as a success.
	require.NotNil(t, snap.LastSuccessAt)
	assert.Equal(t, fixedNow.Add(-3*time.Hour+time.Minute), *snap.LastSuccessAt)
	assert.InDelta(t, 2.9833, snap.HoursSinceSuccess(), 0.001)
}

func TestCollector_LastSuccessOutsideWindow(t *testing.T) {
	ledger := &mockLedger{runs: []model.Run{
		run(model.RunStatusFailed, time.Hour, nil),
		run(model.RunStatusComplete, 72*time.Hour, &model.RunResult{}),
	}}

	snap, err := newTestCollector(ledger).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsTotal)
	assert.InDelta(t, 1.0, snap.FailRate, 0.0001)
	require.NotNil(t, snap.LastSuccessAt)
	assert.Greater(t, snap.HoursSinceSuccess(), 70.0)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := newTestCollector(&mockLedger{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.FailRate)
	assert.Nil(t, snap.LastSuccessAt)
	assert.Equal(t, float64(-1), snap.HoursSinceSuccess())
}

func TestCollector_ListError(t *testing.T) {
	_, err := newTestCollector(&mockLedger{listErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")
}

func TestCollector_CountError(t *testing.T) {
	_, err := newTestCollector(&mockLedger{countErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count applicants")
}
