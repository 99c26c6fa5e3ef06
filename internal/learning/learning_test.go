package learning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/outcome"
	"github.com/jprome/auct-alert/internal/store"
)

type fakeParamStore struct {
	params  map[string]*model.LearningParameter
	history []model.ParameterChange
}

func newFakeParamStore() *fakeParamStore {
	return &fakeParamStore{params: map[string]*model.LearningParameter{}}
}

func (f *fakeParamStore) GetParameter(ctx context.Context, name string) (*model.LearningParameter, error) {
	p, ok := f.params[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeParamStore) SeedParameter(ctx context.Context, p *model.LearningParameter) error {
	if _, ok := f.params[p.ParamName]; ok {
		return nil
	}
	cp := *p
	f.params[p.ParamName] = &cp
	return nil
}

func (f *fakeParamStore) SaveParameter(ctx context.Context, p *model.LearningParameter) error {
	cp := *p
	f.params[p.ParamName] = &cp
	return nil
}

func (f *fakeParamStore) AppendParameterChange(ctx context.Context, c *model.ParameterChange) error {
	f.history = append(f.history, *c)
	return nil
}

func (f *fakeParamStore) ListParameterChanges(ctx context.Context, name string, limit int) ([]model.ParameterChange, error) {
	var out []model.ParameterChange
	for i := len(f.history) - 1; i >= 0 && len(out) < limit; i-- {
		if f.history[i].ParamName == name {
			out = append(out, f.history[i])
		}
	}
	return out, nil
}

type fixedStats struct {
	stats outcome.Stats
}

func (s fixedStats) GetStats(ctx context.Context, days int, now time.Time) (outcome.Stats, error) {
	return s.stats, nil
}

func newLoop(f *fakeParamStore, stats outcome.Stats) *Loop {
	return NewLoop(f, fixedStats{stats}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seeded(t *testing.T, f *fakeParamStore, stats outcome.Stats) *Loop {
	t.Helper()
	l := newLoop(f, stats)
	if err := l.InitializeParams(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return l
}

func TestInitializeParams_Idempotent(t *testing.T) {
	f := newFakeParamStore()
	l := seeded(t, f, outcome.Stats{})

	// Tune one value, then re-seed; it must survive.
	f.params[ParamConfidenceThreshold].CurrentValue = 0.75
	if err := l.InitializeParams(context.Background()); err != nil {
		t.Fatalf("re-seed: %v", err)
	}

	if got := f.params[ParamConfidenceThreshold].CurrentValue; got != 0.75 {
		t.Fatalf("re-seeding reset tuned value to %v", got)
	}
	if len(f.params) != 4 {
		t.Fatalf("expected 4 registered params, got %d", len(f.params))
	}
}

func TestAnalyzeAndAdjust_LowClickRateRaisesThreshold(t *testing.T) {
	f := newFakeParamStore()
	// 2 clicked of 20 resolved: 10% click rate.
	l := seeded(t, f, outcome.Stats{TotalAlerts: 20, Clicked: 2, Ignored: 10, Expired: 8})

	changes, err := l.AnalyzeAndAdjust(context.Background(), 7, time.Now())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	c := changes[0]
	if c.Param != ParamConfidenceThreshold || c.Direction != "up" {
		t.Fatalf("unexpected change: %+v", c)
	}
	if math.Abs(c.NewValue-0.65) > 1e-9 {
		t.Fatalf("new value = %v, want 0.65", c.NewValue)
	}
	if len(f.history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(f.history))
	}
}

func TestAnalyzeAndAdjust_HighClickRateLowersThreshold(t *testing.T) {
	f := newFakeParamStore()
	// 14 clicked of 20 resolved: 70% click rate.
	l := seeded(t, f, outcome.Stats{TotalAlerts: 20, Clicked: 14, Ignored: 4, Expired: 2})

	changes, err := l.AnalyzeAndAdjust(context.Background(), 7, time.Now())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(changes) != 1 || changes[0].Direction != "down" {
		t.Fatalf("unexpected changes: %+v", changes)
	}
	if math.Abs(changes[0].NewValue-0.55) > 1e-9 {
		t.Fatalf("new value = %v, want 0.55", changes[0].NewValue)
	}
}

func TestAnalyzeAndAdjust_SmallSampleIsNoop(t *testing.T) {
	f := newFakeParamStore()
	l := seeded(t, f, outcome.Stats{TotalAlerts: 5, Clicked: 0, Ignored: 3, Expired: 2})

	changes, err := l.AnalyzeAndAdjust(context.Background(), 7, time.Now())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no changes, got %+v", changes)
	}
	if len(f.history) != 0 {
		t.Fatal("no-op run must not write history")
	}
}

func TestAnalyzeAndAdjust_InBandIsNoop(t *testing.T) {
	f := newFakeParamStore()
	// 6 of 20 resolved: 30% click rate, inside [20%, 50%].
	l := seeded(t, f, outcome.Stats{TotalAlerts: 20, Clicked: 6, Ignored: 8, Expired: 6})

	changes, err := l.AnalyzeAndAdjust(context.Background(), 7, time.Now())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no changes, got %+v", changes)
	}
}

func TestAnalyzeAndAdjust_AtBoundIsNoop(t *testing.T) {
	f := newFakeParamStore()
	l := seeded(t, f, outcome.Stats{TotalAlerts: 20, Clicked: 0, Ignored: 20})
	f.params[ParamConfidenceThreshold].CurrentValue = 0.9 // already at max

	changes, err := l.AnalyzeAndAdjust(context.Background(), 7, time.Now())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected bound no-op, got %+v", changes)
	}
	if got := f.params[ParamConfidenceThreshold].CurrentValue; got != 0.9 {
		t.Fatalf("value moved past bound: %v", got)
	}
	if len(f.history) != 0 {
		t.Fatal("bound no-op must not write history")
	}
}

func TestRevertLast_RestoresExactValue(t *testing.T) {
	f := newFakeParamStore()
	l := seeded(t, f, outcome.Stats{TotalAlerts: 20, Clicked: 1, Ignored: 19})

	if _, err := l.AnalyzeAndAdjust(context.Background(), 7, time.Now()); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got := f.params[ParamConfidenceThreshold].CurrentValue; math.Abs(got-0.65) > 1e-9 {
		t.Fatalf("post-adjust value = %v, want 0.65", got)
	}

	change, err := l.RevertLast(context.Background(), ParamConfidenceThreshold, time.Now())
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if math.Abs(change.NewValue-0.6) > 1e-9 {
		t.Fatalf("revert restored %v, want 0.6", change.NewValue)
	}
	if got := f.params[ParamConfidenceThreshold].CurrentValue; math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("stored value = %v, want 0.6", got)
	}

	// Adjustment plus revert: two audit entries, revert reason fixed.
	if len(f.history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(f.history))
	}
	if f.history[1].Reason != "Manual revert" {
		t.Fatalf("revert reason = %q", f.history[1].Reason)
	}
}

func TestRevertLast_NoPreviousValue(t *testing.T) {
	f := newFakeParamStore()
	l := seeded(t, f, outcome.Stats{})

	_, err := l.RevertLast(context.Background(), ParamConfidenceThreshold, time.Now())
	if !errors.Is(err, ErrNoPreviousValue) {
		t.Fatalf("expected ErrNoPreviousValue, got %v", err)
	}
}

func TestCurrentValue_FallsBackToDefault(t *testing.T) {
	f := newFakeParamStore()
	l := newLoop(f, outcome.Stats{})

	if got := l.CurrentValue(context.Background(), ParamConfidenceThreshold); got != 0.6 {
		t.Fatalf("default = %v, want 0.6", got)
	}

	f.params[ParamConfidenceThreshold] = &model.LearningParameter{
		ParamName:    ParamConfidenceThreshold,
		CurrentValue: 0.7,
	}
	if got := l.CurrentValue(context.Background(), ParamConfidenceThreshold); got != 0.7 {
		t.Fatalf("live value = %v, want 0.7", got)
	}
}
