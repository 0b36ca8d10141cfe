package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/gradsync/internal/config"
)

// defaultCheckInterval applies when monitoring.check_interval_secs is unset.
const defaultCheckInterval = 5 * time.Minute

// Checker watches the sync ledger and raises alerts when syncs fail, stall,
// or are turned away by robots.txt.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker wires a collector and alerter to the monitoring settings.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, alerter: alerter, cfg: cfg}
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs <= 0 {
		return defaultCheckInterval
	}
	return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
}

// Run checks sync health once at startup and then on every interval until
// ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	every := c.interval()
	log := zap.L().With(zap.String("component", "sync.health"))
	log.Info("sync health checks enabled",
		zap.Duration("every", every),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Int("stale_after_hours", c.cfg.StaleAfterHours),
	)

	if ctx.Err() == nil {
		c.Check(ctx)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("sync health checks stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check takes one ledger snapshot and delivers whatever alerts it trips.
// A snapshot that cannot be collected yields (nil, nil).
func (c *Checker) Check(ctx context.Context) (*MetricsSnapshot, []Alert) {
	log := zap.L().With(zap.String("component", "sync.health"))
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("read sync ledger", zap.Error(err))
		return nil, nil
	}
	log.Debug("sync ledger snapshot",
		zap.Int("runs", snap.RunsTotal),
		zap.Int("failed", snap.RunsFailed),
		zap.Int("aborted", snap.RunsAborted),
		zap.Float64("hours_since_success", snap.HoursSinceSuccess()),
	)

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		return snap, nil
	}
	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("sync health alerts raised",
		zap.Int("alerts", len(alerts)),
		zap.Int("delivered", sent),
	)
	return snap, alerts
}
