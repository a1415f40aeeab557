package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobleads-cli/internal/config"
	"github.com/sells-group/jobleads-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSourceFailureRate AlertType = "source_failure_rate"
	AlertSilentSource      AlertType = "silent_source"
	AlertItemErrors        AlertType = "item_errors"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Source    model.Source   `json:"source,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and posts
// alerts to a webhook. An alert of the same type and source is posted at
// most once per AlertCooldownMins.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      func() time.Time { return time.Now().UTC() },
		lastSent: make(map[string]time.Time),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := a.now()

	minRuns := a.cfg.MinRuns
	if minRuns <= 0 {
		minRuns = 1
	}
	for _, st := range snap.Sources {
		if st.Runs >= minRuns && st.FailureRate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertSourceFailureRate,
				Severity: "high",
				Source:   st.Source,
				Message: fmt.Sprintf(
					"%s failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d runs in last %dh)",
					st.Source, st.FailureRate*100, a.cfg.FailureRateThreshold*100,
					st.Failed, st.Runs, snap.LookbackHours,
				),
				Details: map[string]any{
					"failure_rate": st.FailureRate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       st.Failed,
					"runs":         st.Runs,
					"last_error":   st.LastError,
				},
				Timestamp: now,
			})
		}
		if a.cfg.ItemErrorRateThreshold > 0 && st.Found > 0 {
			rate := float64(st.Errors) / float64(st.Found)
			if rate > a.cfg.ItemErrorRateThreshold {
				alerts = append(alerts, Alert{
					Type:     AlertItemErrors,
					Severity: "medium",
					Source:   st.Source,
					Message: fmt.Sprintf(
						"%s: %d of %d listings failed in last %dh; selectors may be stale",
						st.Source, st.Errors, st.Found, snap.LookbackHours,
					),
					Details:   map[string]any{"errors": st.Errors, "found": st.Found, "error_rate": rate},
					Timestamp: now,
				})
			}
		}
	}

	for _, src := range snap.SilentSources {
		alerts = append(alerts, Alert{
			Type:      AlertSilentSource,
			Severity:  "medium",
			Source:    src,
			Message:   fmt.Sprintf("%s produced no listings in last %dh", src, snap.LookbackHours),
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts alerts to the webhook, skipping those still cooling
// down, and returns how many were delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if a.coolingDown(alert) {
			continue
		}
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: send alert",
				zap.String("type", string(alert.Type)),
				zap.String("source", string(alert.Source)),
				zap.Error(err),
			)
			continue
		}
		a.markSent(alert)
		sent++
	}
	return sent
}

func alertKey(alert Alert) string {
	return string(alert.Type) + "/" + string(alert.Source)
}

func (a *Alerter) coolingDown(alert Alert) bool {
	cooldown := time.Duration(a.cfg.AlertCooldownMins) * time.Minute
	if cooldown <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	last, ok := a.lastSent[alertKey(alert)]
	return ok && a.now().Sub(last) < cooldown
}

func (a *Alerter) markSent(alert Alert) {
	a.mu.Lock()
	a.lastSent[alertKey(alert)] = a.now()
	a.mu.Unlock()
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
