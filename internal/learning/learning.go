// Package learning adjusts the tunable matching parameters from alert
// outcome feedback. The policy is deliberately conservative: one bounded
// step per run, every change logged and reversible one level back.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/outcome"
	"github.com/jprome/auct-alert/internal/store"
)

// ErrNoPreviousValue is returned by RevertLast when the parameter has
// never been adjusted.
var ErrNoPreviousValue = errors.New("parameter has no previous value")

const (
	// TargetClickRateMin and TargetClickRateMax bound the acceptable
	// click-rate band. Below the band the threshold goes up, above it
	// goes down.
	TargetClickRateMin = 0.20
	TargetClickRateMax = 0.50

	// MinAlertsForAnalysis gates adjustments until the sample is big
	// enough to mean anything.
	MinAlertsForAnalysis = 10
)

// Parameter names.
const (
	ParamConfidenceThreshold = "confidence_threshold"
	ParamMaxHoursBeforeClose = "max_hours_before_close"
	ParamMaxDistanceMiles    = "max_distance_miles"
	ParamMaxPrice            = "max_price"
)

// paramSpec describes one adjustable parameter.
type paramSpec struct {
	Default float64
	Min     float64
	Max     float64
	Step    float64
}

// adjustableParams is the registry of tunable parameters with their hard
// bounds and step sizes.
var adjustableParams = map[string]paramSpec{
	ParamConfidenceThreshold: {Default: 0.6, Min: 0.3, Max: 0.9, Step: 0.05},
	ParamMaxHoursBeforeClose: {Default: 48, Min: 12, Max: 96, Step: 6},
	ParamMaxDistanceMiles:    {Default: 100, Min: 25, Max: 200, Step: 10},
	ParamMaxPrice:            {Default: 1200, Min: 300, Max: 3000, Step: 100},
}

// Store is the persistence surface the loop needs.
type Store interface {
	GetParameter(ctx context.Context, name string) (*model.LearningParameter, error)
	SeedParameter(ctx context.Context, p *model.LearningParameter) error
	SaveParameter(ctx context.Context, p *model.LearningParameter) error
	AppendParameterChange(ctx context.Context, c *model.ParameterChange) error
	ListParameterChanges(ctx context.Context, name string, limit int) ([]model.ParameterChange, error)
}

// StatsProvider supplies the outcome feedback signal.
type StatsProvider interface {
	GetStats(ctx context.Context, days int, now time.Time) (outcome.Stats, error)
}

// Change records one applied adjustment.
type Change struct {
	Param     string  `json:"param"`
	OldValue  float64 `json:"old_value"`
	NewValue  float64 `json:"new_value"`
	Direction string  `json:"direction"` // up / down / revert
	Reason    string  `json:"reason"`
}

// Loop is the parameter controller.
type Loop struct {
	store  Store
	stats  StatsProvider
	logger *slog.Logger
}

func NewLoop(st Store, stats StatsProvider, logger *slog.Logger) *Loop {
	return &Loop{store: st, stats: stats, logger: logger}
}

// InitializeParams seeds every adjustable parameter that does not exist
// yet. Re-running never resets a tuned value.
func (l *Loop) InitializeParams(ctx context.Context) error {
	for name, spec := range adjustableParams {
		if err := l.store.SeedParameter(ctx, &model.LearningParameter{
			ParamName:    name,
			CurrentValue: spec.Default,
			MinValue:     spec.Min,
			MaxValue:     spec.Max,
			StepSize:     spec.Step,
		}); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return nil
}

// CurrentValue returns the live value of a parameter, or its registry
// default when the row is missing.
func (l *Loop) CurrentValue(ctx context.Context, name string) float64 {
	p, err := l.store.GetParameter(ctx, name)
	if err == nil {
		return p.CurrentValue
	}
	if !errors.Is(err, store.ErrNotFound) {
		l.logger.Warn("load parameter failed, using default",
			slog.String("param", name),
			slog.String("error", err.Error()))
	}
	return adjustableParams[name].Default
}

// AnalyzeAndAdjust reads the outcome stats for the trailing window and
// applies at most one adjustment to the confidence threshold. It returns
// the changes made (empty when the sample is too small, the click rate is
// in band, or the parameter is already at its bound).
func (l *Loop) AnalyzeAndAdjust(ctx context.Context, days int, now time.Time) ([]Change, error) {
	stats, err := l.stats.GetStats(ctx, days, now)
	if err != nil {
		return nil, fmt.Errorf("outcome stats: %w", err)
	}

	clickRate := stats.ClickRate()
	l.logger.Info("learning loop analysis",
		slog.Int("window_days", days),
		slog.Int("total_alerts", stats.TotalAlerts),
		slog.Float64("click_rate", clickRate))

	if stats.TotalAlerts < MinAlertsForAnalysis {
		l.logger.Info("not enough alerts for analysis",
			slog.Int("have", stats.TotalAlerts),
			slog.Int("need", MinAlertsForAnalysis))
		return nil, nil
	}

	var changes []Change
	switch {
	case clickRate < TargetClickRateMin:
		// Too many irrelevant alerts, be more selective.
		reason := fmt.Sprintf("Click rate %.1f%% below target %.0f%%", clickRate*100, TargetClickRateMin*100)
		if c, err := l.adjustParam(ctx, ParamConfidenceThreshold, "up", reason, now); err != nil {
			return nil, err
		} else if c != nil {
			changes = append(changes, *c)
		}
	case clickRate > TargetClickRateMax:
		// Possibly missing good items, be less selective.
		reason := fmt.Sprintf("Click rate %.1f%% above target %.0f%%", clickRate*100, TargetClickRateMax*100)
		if c, err := l.adjustParam(ctx, ParamConfidenceThreshold, "down", reason, now); err != nil {
			return nil, err
		} else if c != nil {
			changes = append(changes, *c)
		}
	default:
		l.logger.Info("click rate in target range, no adjustment")
	}

	return changes, nil
}

// adjustParam moves a parameter one step in the given direction, clamped
// to its bounds. A parameter already at its bound is a logged no-op.
func (l *Loop) adjustParam(ctx context.Context, name, direction, reason string, now time.Time) (*Change, error) {
	p, err := l.store.GetParameter(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load parameter %s: %w", name, err)
	}

	oldValue := p.CurrentValue
	var newValue float64
	if direction == "up" {
		newValue = p.Clamp(oldValue + p.StepSize)
	} else {
		newValue = p.Clamp(oldValue - p.StepSize)
	}

	if newValue == oldValue {
		l.logger.Info("parameter already at bound",
			slog.String("param", name),
			slog.Float64("value", oldValue))
		return nil, nil
	}

	prev := oldValue
	p.PreviousValue = &prev
	p.CurrentValue = newValue
	p.ChangeReason = reason
	ts := now
	p.ChangedAt = &ts

	if err := l.store.SaveParameter(ctx, p); err != nil {
		return nil, fmt.Errorf("save parameter %s: %w", name, err)
	}
	if err := l.store.AppendParameterChange(ctx, &model.ParameterChange{
		ParamName: name,
		OldValue:  oldValue,
		NewValue:  newValue,
		Reason:    reason,
		ChangedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("log parameter change %s: %w", name, err)
	}

	l.logger.Info("parameter adjusted",
		slog.String("param", name),
		slog.Float64("old", oldValue),
		slog.Float64("new", newValue),
		slog.String("reason", reason))

	return &Change{
		Param:     name,
		OldValue:  oldValue,
		NewValue:  newValue,
		Direction: direction,
		Reason:    reason,
	}, nil
}

// RevertLast swaps a parameter back to its previous value. The displaced
// value becomes the new previous value, so a revert can itself be
// reverted. Returns ErrNoPreviousValue when there is nothing to undo.
func (l *Loop) RevertLast(ctx context.Context, name string, now time.Time) (*Change, error) {
	p, err := l.store.GetParameter(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load parameter %s: %w", name, err)
	}
	if p.PreviousValue == nil {
		return nil, ErrNoPreviousValue
	}

	oldValue := p.CurrentValue
	newValue := *p.PreviousValue

	p.CurrentValue = newValue
	p.PreviousValue = &oldValue
	p.ChangeReason = "Reverted previous change"
	ts := now
	p.ChangedAt = &ts

	if err := l.store.SaveParameter(ctx, p); err != nil {
		return nil, fmt.Errorf("save parameter %s: %w", name, err)
	}
	if err := l.store.AppendParameterChange(ctx, &model.ParameterChange{
		ParamName: name,
		OldValue:  oldValue,
		NewValue:  newValue,
		Reason:    "Manual revert",
		ChangedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("log parameter change %s: %w", name, err)
	}

	l.logger.Info("parameter reverted",
		slog.String("param", name),
		slog.Float64("old", oldValue),
		slog.Float64("new", newValue))

	return &Change{
		Param:     name,
		OldValue:  oldValue,
		NewValue:  newValue,
		Direction: "revert",
		Reason:    "Manual revert",
	}, nil
}

// History returns the audit log for one parameter, newest first.
func (l *Loop) History(ctx context.Context, name string, limit int) ([]model.ParameterChange, error) {
	return l.store.ListParameterChanges(ctx, name, limit)
}
