// Package alert turns match results into stored, delivered alerts.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jprome/auct-alert/internal/matching"
	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/pkg/notify"
)

// Store is the persistence surface the sender needs.
type Store interface {
	AlertExists(ctx context.Context, itemID, intentID string) (bool, error)
	CreateAlert(ctx context.Context, alert *model.Alert) error
	MarkAlertSent(ctx context.Context, alertID string, at time.Time) error
}

// Summary reports what one dispatch pass did.
type Summary struct {
	Created    int
	Sent       int
	Duplicates int
	Failures   int
}

// Sender creates alert rows for fresh matches and dispatches them. One
// alert per (item, intent) pair, ever: re-running over the same matches
// creates nothing new.
type Sender struct {
	store           Store
	notifier        notify.Notifier
	trackingBaseURL string
	logger          *slog.Logger
}

func NewSender(st Store, notifier notify.Notifier, trackingBaseURL string, logger *slog.Logger) *Sender {
	return &Sender{
		store:           st,
		notifier:        notifier,
		trackingBaseURL: strings.TrimRight(trackingBaseURL, "/"),
		logger:          logger,
	}
}

// SendMatches walks the match results and creates plus dispatches an alert
// for every pair not alerted before. A dispatch failure is logged and
// counted; the alert row stays with a nil sent_at so the failure is
// visible, and the pass continues.
func (s *Sender) SendMatches(ctx context.Context, matches []matching.MatchResult, now time.Time) (Summary, error) {
	var sum Summary

	for i := range matches {
		m := &matches[i]

		exists, err := s.store.AlertExists(ctx, m.Item.ItemID, m.Intent.IntentID)
		if err != nil {
			return sum, fmt.Errorf("alert existence check: %w", err)
		}
		if exists {
			sum.Duplicates++
			continue
		}

		alert := s.buildAlert(m, now)
		if err := s.store.CreateAlert(ctx, alert); err != nil {
			s.logger.Warn("create alert failed",
				slog.String("item_id", m.Item.ItemID),
				slog.String("intent_id", m.Intent.IntentID),
				slog.String("error", err.Error()))
			sum.Failures++
			continue
		}
		sum.Created++

		if err := s.dispatch(ctx, m, alert); err != nil {
			s.logger.Warn("alert dispatch failed",
				slog.String("alert_id", alert.AlertID),
				slog.String("error", err.Error()))
			sum.Failures++
			continue
		}

		if err := s.store.MarkAlertSent(ctx, alert.AlertID, now); err != nil {
			s.logger.Warn("mark alert sent failed",
				slog.String("alert_id", alert.AlertID),
				slog.String("error", err.Error()))
			sum.Failures++
			continue
		}
		sum.Sent++
	}

	s.logger.Info("alert pass completed",
		slog.Int("created", sum.Created),
		slog.Int("sent", sum.Sent),
		slog.Int("duplicates", sum.Duplicates),
		slog.Int("failures", sum.Failures))
	return sum, nil
}

// buildAlert snapshots the match into a new alert row. The score and
// reasons are frozen here and never updated afterwards.
func (s *Sender) buildAlert(m *matching.MatchResult, now time.Time) *model.Alert {
	return &model.Alert{
		AlertID:         newAlertID(),
		ItemID:          m.Item.ItemID,
		IntentID:        m.Intent.IntentID,
		UserID:          m.Intent.UserID,
		ConfidenceScore: m.Confidence,
		MatchReasons:    m.MatchReasons,
		CreatedAt:       now,
		Outcome:         model.OutcomePending,
		TrackingToken:   newTrackingToken(),
	}
}

func (s *Sender) dispatch(ctx context.Context, m *matching.MatchResult, alert *model.Alert) error {
	clickURL := ""
	if s.trackingBaseURL != "" {
		clickURL = s.trackingBaseURL + "/click/" + alert.TrackingToken
	}
	return s.notifier.Send(ctx, &notify.AlertMessage{
		Item:         &m.Item,
		Confidence:   m.Confidence,
		MatchReasons: m.MatchReasons,
		ClickURL:     clickURL,
		ToEmail:      m.Intent.UserEmail,
	})
}

// newAlertID returns an id like "alert_3f2a9c81d04e".
func newAlertID() string {
	return "alert_" + uuidHex()[:12]
}

// newTrackingToken returns a 32-char opaque token.
func newTrackingToken() string {
	return uuidHex()
}

func uuidHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
