package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/gradsync/internal/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func healthySnapshot() *MetricsSnapshot {
	now := time.Now().UTC()
	last := now.Add(-2 * time.Hour)
	return &MetricsSnapshot{
		RunsTotal:     10,
		RunsComplete:  10,
		FailRate:      0,
		LastSuccessAt: &last,
		Applicants:    30000,
		LookbackHours: 24,
		CollectedAt:   now,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.25,
		StaleAfterHours:      48,
	})

	alerts := a.Evaluate(healthySnapshot())
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	snap := healthySnapshot()
	snap.RunsComplete = 6
	snap.RunsFailed = 4
	snap.FailRate = 0.4

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSyncFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Contains(t, alerts[0].Message, "4 failed / 10 finished")
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	snap := healthySnapshot()
	snap.RunsComplete = 1
	snap.RunsFailed = 1
	snap.FailRate = 0.5

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_Stale(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1, StaleAfterHours: 24})

	snap := healthySnapshot()
	old := snap.CollectedAt.Add(-30 * time.Hour)
	snap.LastSuccessAt = &old

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSyncStale, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "30.0h ago")
}

func TestAlerter_Evaluate_NeverSucceeded(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1, StaleAfterHours: 24})

	snap := healthySnapshot()
	snap.LastSuccessAt = nil

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSyncStale, alerts[0].Type)
	assert.Equal(t, "No sync has ever completed", alerts[0].Message)
}

func TestAlerter_Evaluate_StaleDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1})

	snap := healthySnapshot()
	snap.LastSuccessAt = nil

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_Aborted(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1})

	snap := healthySnapshot()
	snap.RunsComplete = 3
	snap.RunsAborted = 3

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCrawlAborted, alerts[0].Type)

	// One good run in the window clears it.
	snap.RunsComplete = 4
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.1, StaleAfterHours: 1})

	snap := healthySnapshot()
	snap.RunsComplete = 2
	snap.RunsFailed = 8
	snap.FailRate = 0.8

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertSyncFailureRate, alerts[0].Type)
	assert.Equal(t, AlertSyncStale, alerts[1].Type)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertSyncFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertSyncStale, Severity: "medium", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertSyncFailureRate, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertSyncFailureRate, Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}
