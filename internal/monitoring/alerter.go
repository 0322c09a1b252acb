package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zonemap/internal/config"
	"github.com/sells-group/zonemap/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStaleSnapshot   AlertType = "stale_snapshot"
	AlertRefreshFailing  AlertType = "refresh_failing"
	AlertCellFailureRate AlertType = "cell_failure_rate"
	AlertCircuitOpen     AlertType = "circuit_open"
)

// minCellsForRate is the fewest cell fetches a failure rate is judged on.
const minCellsForRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a HealthSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(h *HealthSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	staleAfter := time.Duration(a.cfg.StaleAfterSecs) * time.Second
	if staleAfter > 0 && h.SnapshotAge > staleAfter {
		msg := fmt.Sprintf("No snapshot committed for %s (threshold %s)",
			h.SnapshotAge.Round(time.Second), staleAfter)
		if h.HasSnapshot {
			msg = fmt.Sprintf("Snapshot %s is %s old (threshold %s)",
				h.SnapshotID, h.SnapshotAge.Round(time.Second), staleAfter)
		}
		alerts = append(alerts, Alert{
			Type:     AlertStaleSnapshot,
			Severity: "high",
			Message:  msg,
			Details: map[string]any{
				"age_secs":       h.SnapshotAge.Seconds(),
				"threshold_secs": staleAfter.Seconds(),
				"generation":     h.Generation,
			},
			Timestamp: now,
		})
	}

	if a.cfg.FailureThreshold > 0 && h.ConsecutiveFailures >= a.cfg.FailureThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRefreshFailing,
			Severity: "high",
			Message: fmt.Sprintf("%d consecutive refresh cycles failed (threshold %d)",
				h.ConsecutiveFailures, a.cfg.FailureThreshold),
			Details: map[string]any{
				"consecutive_failures": h.ConsecutiveFailures,
				"threshold":            a.cfg.FailureThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CellFailureRate > 0 && h.CellsFetched >= minCellsForRate && h.CellFailureRate > a.cfg.CellFailureRate {
		alerts = append(alerts, Alert{
			Type:     AlertCellFailureRate,
			Severity: "medium",
			Message: fmt.Sprintf("Cell failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d fetched)",
				h.CellFailureRate*100, a.cfg.CellFailureRate*100, h.CellsFailed, h.CellsFetched),
			Details: map[string]any{
				"failure_rate": h.CellFailureRate,
				"threshold":    a.cfg.CellFailureRate,
				"failed":       h.CellsFailed,
				"fetched":      h.CellsFetched,
			},
			Timestamp: now,
		})
	}

	if h.BreakerState == resilience.Open.String() {
		alerts = append(alerts, Alert{
			Type:      AlertCircuitOpen,
			Severity:  "high",
			Message:   "Zone service circuit breaker is open",
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
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
