package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/jobleads-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates the scraping logs on an interval and alerts on
// unhealthy boards.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	log       *zap.Logger
}

// NewChecker returns a Checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "monitoring")),
	}
}

// Run checks once immediately, then every CheckIntervalSecs until ctx is
// done.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	c.log.Info("board health checks started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		c.Check(ctx)
		select {
		case <-ctx.Done():
			c.log.Info("board health checks stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check evaluates one snapshot and sends its alerts. The snapshot is nil
// when the logs could not be read.
func (c *Checker) Check(ctx context.Context) (*Snapshot, []Alert) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.log.Error("collect scraping logs", zap.Error(err))
		return nil, nil
	}

	alerts := c.alerter.Evaluate(snap)
	for _, a := range alerts {
		c.log.Warn(a.Message,
			zap.String("alert", string(a.Type)),
			zap.String("source", string(a.Source)),
			zap.String("severity", a.Severity),
		)
	}
	if len(alerts) > 0 {
		sent := c.alerter.SendAlerts(ctx, alerts)
		c.log.Info("alerts sent", zap.Int("raised", len(alerts)), zap.Int("sent", sent))
	}
	return snap, alerts
}
