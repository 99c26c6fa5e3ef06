// Package outcome tracks what happened to each alert after it was sent
// and derives the feedback signal the learning loop consumes.
package outcome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/store"
)

// Store is the persistence surface the tracker needs.
type Store interface {
	ListUnresolvedAlerts(ctx context.Context) ([]model.Alert, error)
	ListAlertsSince(ctx context.Context, since time.Time) ([]model.Alert, error)
	GetItem(ctx context.Context, itemID string) (*model.AuctionItem, error)
	GetAlert(ctx context.Context, alertID string) (*model.Alert, error)
	GetAlertByToken(ctx context.Context, token string) (*model.Alert, error)
	UpdateAlertOutcome(ctx context.Context, alert *model.Alert) error
}

// Stats summarizes alert outcomes over a window.
type Stats struct {
	TotalAlerts int `json:"total_alerts"`
	Clicked     int `json:"clicked"`
	Ignored     int `json:"ignored"`
	Expired     int `json:"expired"`
	Pending     int `json:"pending"`
}

// ClickRate is clicked over all resolved alerts (clicked, ignored,
// expired). Zero when nothing has resolved yet.
func (s Stats) ClickRate() float64 {
	resolved := s.Clicked + s.Ignored + s.Expired
	if resolved == 0 {
		return 0
	}
	return float64(s.Clicked) / float64(resolved)
}

// ResponseRate is clicked over clicked+ignored+pending.
func (s Stats) ResponseRate() float64 {
	sent := s.Clicked + s.Ignored + s.Pending
	if sent == 0 {
		return 0
	}
	return float64(s.Clicked) / float64(sent)
}

// Tracker applies the alert outcome lifecycle.
type Tracker struct {
	store  Store
	logger *slog.Logger
}

func NewTracker(st Store, logger *slog.Logger) *Tracker {
	return &Tracker{store: st, logger: logger}
}

// SweepSummary reports what one expiry sweep resolved.
type SweepSummary struct {
	Expired int
	Ignored int
}

// Resolved is the total number of alerts the sweep transitioned.
func (s SweepSummary) Resolved() int {
	return s.Expired + s.Ignored
}

// SweepExpired resolves alerts whose auction has closed: an alert that was
// clicked becomes expired (the user saw it but went no further), one that
// was never clicked becomes ignored. Individual load failures are logged
// and skipped so one bad row never stalls the sweep.
func (t *Tracker) SweepExpired(ctx context.Context, now time.Time) (SweepSummary, error) {
	alerts, err := t.store.ListUnresolvedAlerts(ctx)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list unresolved alerts: %w", err)
	}

	var summary SweepSummary
	for i := range alerts {
		alert := &alerts[i]

		item, err := t.store.GetItem(ctx, alert.ItemID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			t.logger.Warn("sweep: load item failed",
				slog.String("alert_id", alert.AlertID),
				slog.String("item_id", alert.ItemID),
				slog.String("error", err.Error()))
			continue
		}
		if !item.Closed(now) {
			continue
		}

		if alert.ClickedAt != nil {
			alert.Outcome = model.OutcomeExpired
		} else {
			alert.Outcome = model.OutcomeIgnored
		}
		ts := now
		alert.OutcomeUpdatedAt = &ts

		if err := t.store.UpdateAlertOutcome(ctx, alert); err != nil {
			t.logger.Warn("sweep: update outcome failed",
				slog.String("alert_id", alert.AlertID),
				slog.String("error", err.Error()))
			continue
		}
		if alert.Outcome == model.OutcomeExpired {
			summary.Expired++
		} else {
			summary.Ignored++
		}
	}

	t.logger.Info("outcome sweep completed",
		slog.Int("expired", summary.Expired),
		slog.Int("ignored", summary.Ignored))
	return summary, nil
}

// RecordClick marks the alert behind the tracking token as clicked and
// returns it so the caller can redirect. Clicking twice keeps the first
// clicked_at. Unknown tokens return store.ErrNotFound.
func (t *Tracker) RecordClick(ctx context.Context, token string, now time.Time) (*model.Alert, error) {
	alert, err := t.store.GetAlertByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if alert.ClickedAt == nil {
		ts := now
		alert.ClickedAt = &ts
		if !alert.Outcome.Terminal() {
			alert.Outcome = model.OutcomeClicked
			alert.OutcomeUpdatedAt = &ts
		}
		if err := t.store.UpdateAlertOutcome(ctx, alert); err != nil {
			return nil, fmt.Errorf("record click %s: %w", alert.AlertID, err)
		}
		t.logger.Info("alert click recorded", slog.String("alert_id", alert.AlertID))
	}

	return alert, nil
}

// SetOutcome applies a manual outcome (won / lost) to an alert.
func (t *Tracker) SetOutcome(ctx context.Context, alertID string, outcome model.AlertOutcome, now time.Time) error {
	if !outcome.Valid() {
		return fmt.Errorf("invalid outcome %q", outcome)
	}
	alert, err := t.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	ts := now
	alert.Outcome = outcome
	alert.OutcomeUpdatedAt = &ts
	return t.store.UpdateAlertOutcome(ctx, alert)
}

// GetStats summarizes alerts created in the past N days as of now.
func (t *Tracker) GetStats(ctx context.Context, days int, now time.Time) (Stats, error) {
	since := now.AddDate(0, 0, -days)
	alerts, err := t.store.ListAlertsSince(ctx, since)
	if err != nil {
		return Stats{}, fmt.Errorf("list alerts for stats: %w", err)
	}

	stats := Stats{TotalAlerts: len(alerts)}
	for _, alert := range alerts {
		switch alert.Outcome {
		case model.OutcomeClicked:
			stats.Clicked++
		case model.OutcomeIgnored:
			stats.Ignored++
		case model.OutcomeExpired:
			stats.Expired++
		default:
			stats.Pending++
		}
	}
	return stats, nil
}
