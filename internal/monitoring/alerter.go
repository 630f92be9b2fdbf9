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

	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/model"
	"github.com/sells-group/repreneur-cli/internal/source"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFormatChanged     AlertType = "source_format_changed"
	AlertSourceUnavailable AlertType = "source_unavailable"
	AlertDropRate          AlertType = "drop_rate"
	AlertRunFailed         AlertType = "run_failed"
)

// minFetchedForDropRate keeps tiny samples from tripping the drop-rate alert.
const minFetchedForDropRate = 10

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Source    string         `json:"source,omitempty"`
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a run summary against configured thresholds
// and sends alerts via webhook.
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

// Evaluate returns the alerts a finished run warrants.
func (a *Alerter) Evaluate(s *model.RunSummary) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if s.Status == model.RunStatusFailed {
		alerts = append(alerts, Alert{
			Type:      AlertRunFailed,
			Severity:  "high",
			RunID:     s.RunID,
			Message:   fmt.Sprintf("Run %s failed: %s", s.RunID, s.Error),
			Timestamp: now,
		})
	}

	for _, src := range s.Sources {
		switch src.ErrorKind {
		case source.KindFormatChanged.String():
			alerts = append(alerts, Alert{
				Type:      AlertFormatChanged,
				Severity:  "high",
				Source:    src.Source,
				RunID:     s.RunID,
				Message:   fmt.Sprintf("Source %s changed format, adapter needs attention: %s", src.Source, src.Error),
				Timestamp: now,
			})
		case source.KindUnavailable.String():
			alerts = append(alerts, Alert{
				Type:      AlertSourceUnavailable,
				Severity:  "medium",
				Source:    src.Source,
				RunID:     s.RunID,
				Message:   fmt.Sprintf("Source %s unavailable: %s", src.Source, src.Error),
				Timestamp: now,
			})
		}

		if a.cfg.DropRateThreshold <= 0 || src.Fetched < minFetchedForDropRate {
			continue
		}
		dropped := src.DroppedTotal()
		rate := float64(dropped) / float64(src.Fetched)
		if rate > a.cfg.DropRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertDropRate,
				Severity: "low",
				Source:   src.Source,
				RunID:    s.RunID,
				Message: fmt.Sprintf(
					"Source %s dropped %.1f%% of records (%d/%d), threshold %.1f%%",
					src.Source, rate*100, dropped, src.Fetched, a.cfg.DropRateThreshold*100,
				),
				Details: map[string]any{
					"drop_rate": rate,
					"threshold": a.cfg.DropRateThreshold,
					"reasons":   src.Dropped,
				},
				Timestamp: now,
			})
		}
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
			zap.String("source", alert.Source),
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
