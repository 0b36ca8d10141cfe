package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gradsync/internal/config"
	"github.com/sells-group/gradsync/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	collector := newTestCollector(&mockLedger{})
	alerter := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})
	checker := NewChecker(collector, alerter, config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(newTestCollector(&mockLedger{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{
		CheckIntervalSecs: 0,
	})
	assert.NotNil(t, checker)

	// Start and immediately cancel to verify it doesn't panic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_RunChecksOnStartup(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:          ts.URL,
		StaleAfterHours:     24,
		LookbackWindowHours: 24,
		CheckIntervalSecs:   3600,
	}
	// Empty ledger: no successful sync yet, so the stale alert fires.
	checker := NewChecker(newTestCollector(&mockLedger{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return received.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestChecker_Interval(t *testing.T) {
	assert.Equal(t, defaultCheckInterval, NewChecker(nil, nil, config.MonitoringConfig{}).interval())
	assert.Equal(t, 30*time.Second, NewChecker(nil, nil, config.MonitoringConfig{CheckIntervalSecs: 30}).interval())
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		FailureRateThreshold: 0.5,
		StaleAfterHours:      24,
		LookbackWindowHours:  24,
	}
	ledger := &mockLedger{runs: []model.Run{
		run(model.RunStatusFailed, time.Hour, nil),
		run(model.RunStatusFailed, 2*time.Hour, nil),
		run(model.RunStatusFailed, 3*time.Hour, nil),
	}}
	checker := NewChecker(newTestCollector(ledger), NewAlerter(cfg), cfg)

	snap, alerts := checker.Check(context.Background())
	require.NotNil(t, snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(newTestCollector(&mockLedger{listErr: errors.New("boom")}), NewAlerter(cfg), cfg)

	snap, alerts := checker.Check(context.Background())
	assert.Nil(t, snap)
	assert.Nil(t, alerts)
}
