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

	"github.com/sells-group/evidence-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertWasteRate   AlertType = "waste_rate"
	AlertLatency     AlertType = "p95_latency"
	AlertFailureRate AlertType = "failure_rate"
)

// minSample is the number of attempts needed before rates are trusted.
const minSample = 5

// failureRateThreshold triggers when a fifth of attempts fail outright.
const failureRateThreshold = 0.2

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
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
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.Complete >= minSample && a.cfg.WasteRateThreshold > 0 && snap.WasteRate > a.cfg.WasteRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertWasteRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Source waste rate %.1f%% exceeds threshold %.1f%% (%d of %d completed generations in last %dh)",
				snap.WasteRate*100, a.cfg.WasteRateThreshold*100,
				snap.Wasted, snap.Complete, snap.LookbackHours,
			),
			Details: map[string]any{
				"waste_rate":   snap.WasteRate,
				"threshold":    a.cfg.WasteRateThreshold,
				"wasted":       snap.Wasted,
				"complete":     snap.Complete,
				"avg_coverage": snap.AvgCoverage,
			},
			Timestamp: now,
		})
	}

	if a.cfg.P95LatencyThresholdMs > 0 && snap.P95LatencyMs > a.cfg.P95LatencyThresholdMs {
		alerts = append(alerts, Alert{
			Type:     AlertLatency,
			Severity: "medium",
			Message: fmt.Sprintf(
				"p95 generation latency %dms exceeds threshold %dms in last %dh",
				snap.P95LatencyMs, a.cfg.P95LatencyThresholdMs, snap.LookbackHours,
			),
			Details: map[string]any{
				"p50_ms":       snap.P50LatencyMs,
				"p95_ms":       snap.P95LatencyMs,
				"threshold_ms": a.cfg.P95LatencyThresholdMs,
			},
			Timestamp: now,
		})
	}

	if snap.Total >= minSample && snap.FailRate > failureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Generation failure rate %.1f%% (%d failed / %d attempts in last %dh)",
				snap.FailRate*100, snap.Failed, snap.Total, snap.LookbackHours,
			),
			Details: map[string]any{
				"fail_rate": snap.FailRate,
				"failed":    snap.Failed,
				"total":     snap.Total,
			},
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
