package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jprome/auct-alert/internal/alert"
	"github.com/jprome/auct-alert/internal/config"
	"github.com/jprome/auct-alert/internal/learning"
	"github.com/jprome/auct-alert/internal/matching"
	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/normalize"
	"github.com/jprome/auct-alert/internal/outcome"
	"github.com/jprome/auct-alert/internal/pkg/metrics"
	"github.com/jprome/auct-alert/internal/source"
)

func TestMain(m *testing.M) {
	metrics.InitMetrics()
	os.Exit(m.Run())
}

type fakeStore struct {
	mu      sync.Mutex
	items   map[string]*model.AuctionItem
	intents []model.UserIntent
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[string]*model.AuctionItem{}}
}

func (f *fakeStore) UpsertItem(ctx context.Context, item *model.AuctionItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ItemID] = item
	return nil
}

func (f *fakeStore) ListOpenItems(ctx context.Context, now time.Time) ([]model.AuctionItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AuctionItem
	for _, it := range f.items {
		if !it.Closed(now) {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveIntents(ctx context.Context) ([]model.UserIntent, error) {
	return f.intents, nil
}

type fakeScraper struct {
	src      model.AuctionSource
	listings []source.RawListing
	err      error
}

func (f *fakeScraper) Source() model.AuctionSource { return f.src }

func (f *fakeScraper) FetchListings(ctx context.Context) ([]source.RawListing, error) {
	return f.listings, f.err
}

type fakeDedup struct{ dups map[string]bool }

func (f *fakeDedup) Seen(ctx context.Context, url string) (bool, error) {
	return f.dups[url], nil
}

type fakeSender struct {
	mu      sync.Mutex
	batches [][]matching.MatchResult
}

func (f *fakeSender) SendMatches(ctx context.Context, matches []matching.MatchResult, now time.Time) (alert.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, matches)
	return alert.Summary{Created: len(matches), Sent: len(matches)}, nil
}

type fakeSweeper struct{ summary outcome.SweepSummary }

func (f *fakeSweeper) SweepExpired(ctx context.Context, now time.Time) (outcome.SweepSummary, error) {
	return f.summary, nil
}

type fakeTuner struct {
	vals    map[string]float64
	changes []learning.Change
}

func (f *fakeTuner) CurrentValue(ctx context.Context, name string) float64 {
	return f.vals[name]
}

func (f *fakeTuner) AnalyzeAndAdjust(ctx context.Context, days int, now time.Time) ([]learning.Change, error) {
	return f.changes, nil
}

func defaultTuner() *fakeTuner {
	return &fakeTuner{vals: map[string]float64{
		learning.ParamConfidenceThreshold: 0.6,
		learning.ParamMaxHoursBeforeClose: 48,
		learning.ParamMaxDistanceMiles:    100,
		learning.ParamMaxPrice:            1200,
	}}
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		WorkerPoolSize:     2,
		QueueCapacity:      8,
		ReferenceLat:       25.7617,
		ReferenceLng:       -80.1918,
		LearningWindowDays: 7,
		PipelineInterval:   time.Hour,
		OutcomeInterval:    time.Hour,
		LearningInterval:   time.Hour,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(st *fakeStore, scrapers []source.Scraper, dd *fakeDedup, snd *fakeSender) *Coordinator {
	c := NewCoordinator(Deps{
		Cfg:        testConfig(),
		Store:      st,
		Scrapers:   scrapers,
		Normalizer: normalize.New(testLogger()),
		Dedup:      dd,
		Matcher:    matching.NewMatcher(matching.DefaultWeights(), 2),
		Sender:     snd,
		Sweeper:    &fakeSweeper{},
		Tuner:      defaultTuner(),
		Logger:     testLogger(),
	})
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestRunFull_EndToEnd(t *testing.T) {
	st := newFakeStore()
	scraper := &fakeScraper{
		src: model.SourceHiBid,
		listings: []source.RawListing{
			{
				SourceItemID: "100",
				Source:       model.SourceHiBid,
				SourceURL:    "https://www.hibid.com/catalog/100",
				Title:        "Solid Oak Dining Table",
				CurrentPrice: "300",
				ClosingAt:    "2026-03-02 12:00:00",
				City:         "Miami",
				State:        "FL",
			},
			{
				SourceItemID: "101",
				Source:       model.SourceHiBid,
				SourceURL:    "https://www.hibid.com/catalog/101",
				Title:        "Already seen lot",
			},
			{
				// No source item id: dropped at normalization.
				Source:    model.SourceHiBid,
				SourceURL: "https://www.hibid.com/catalog/bad",
				Title:     "Broken row",
			},
		},
	}
	dd := &fakeDedup{dups: map[string]bool{"https://www.hibid.com/catalog/101": true}}
	snd := &fakeSender{}

	c := newTestCoordinator(st, []source.Scraper{scraper}, dd, snd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Shutdown(5 * time.Second)

	sum, err := c.RunFull(ctx)
	if err != nil {
		t.Fatalf("RunFull: %v", err)
	}

	if sum.Scraped != 3 {
		t.Fatalf("scraped = %d, want 3", sum.Scraped)
	}
	if sum.Duplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", sum.Duplicates)
	}
	if sum.Malformed != 1 {
		t.Fatalf("malformed = %d, want 1", sum.Malformed)
	}
	if sum.Upserted != 1 {
		t.Fatalf("upserted = %d, want 1", sum.Upserted)
	}
	if _, ok := st.items["hibid_100"]; !ok {
		t.Fatal("dining table item was not stored")
	}

	// No user intents: the default dining table intent matches the item.
	if sum.Matches != 1 {
		t.Fatalf("matches = %d, want 1", sum.Matches)
	}
	if sum.Alerts.Created != 1 || sum.Alerts.Sent != 1 {
		t.Fatalf("alerts = %+v, want 1 created and sent", sum.Alerts)
	}
	if len(snd.batches) != 1 || snd.batches[0][0].Intent.IntentID != "intent_default" {
		t.Fatal("sender did not receive the default-intent match")
	}
}

func TestRunFull_FailedSourceContributesNothing(t *testing.T) {
	st := newFakeStore()
	good := &fakeScraper{
		src: model.SourceEstateSales,
		listings: []source.RawListing{
			{SourceItemID: "1", Source: model.SourceEstateSales, SourceURL: "https://www.estatesales.net/FL/Miami/33139/1", Title: "Estate sale"},
		},
	}
	bad := &fakeScraper{src: model.SourceHiBid, err: context.DeadlineExceeded}
	snd := &fakeSender{}

	c := newTestCoordinator(st, []source.Scraper{good, bad}, &fakeDedup{dups: map[string]bool{}}, snd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Shutdown(5 * time.Second)

	sum, err := c.RunFull(ctx)
	if err != nil {
		t.Fatalf("RunFull: %v", err)
	}
	if sum.Scraped != 1 {
		t.Fatalf("scraped = %d, want 1 from the healthy source", sum.Scraped)
	}
	if sum.Upserted != 1 {
		t.Fatalf("upserted = %d, want 1", sum.Upserted)
	}
}

func TestRunFull_UsesStoredIntents(t *testing.T) {
	st := newFakeStore()
	st.intents = []model.UserIntent{{
		IntentID:            "intent_custom",
		Category:            model.CategoryFurniture,
		Subtype:             model.SubtypeAny,
		MaxPrice:            500,
		ConfidenceThreshold: 0.3,
		IsActive:            true,
	}}
	closing := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	st.items["hibid_7"] = &model.AuctionItem{
		ItemID:    "hibid_7",
		Source:    model.SourceHiBid,
		Title:     "Dresser",
		Category:  model.CategoryFurniture,
		Subtype:   model.SubtypeDresser,
		ClosingAt: &closing,
	}
	snd := &fakeSender{}

	c := newTestCoordinator(st, nil, &fakeDedup{dups: map[string]bool{}}, snd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Shutdown(5 * time.Second)

	sum, err := c.RunFull(ctx)
	if err != nil {
		t.Fatalf("RunFull: %v", err)
	}
	if sum.Matches != 1 {
		t.Fatalf("matches = %d, want 1", sum.Matches)
	}
	if snd.batches[0][0].Intent.IntentID != "intent_custom" {
		t.Fatal("stored intent was not used")
	}
}

func TestRunOutcomeSweepAndLearning(t *testing.T) {
	st := newFakeStore()
	sweeper := &fakeSweeper{summary: outcome.SweepSummary{Expired: 2, Ignored: 3}}
	tuner := defaultTuner()
	tuner.changes = []learning.Change{{
		Param: learning.ParamConfidenceThreshold, OldValue: 0.6, NewValue: 0.65, Direction: "up",
	}}

	c := NewCoordinator(Deps{
		Cfg:        testConfig(),
		Store:      st,
		Normalizer: normalize.New(testLogger()),
		Dedup:      &fakeDedup{dups: map[string]bool{}},
		Matcher:    matching.NewMatcher(matching.DefaultWeights(), 1),
		Sender:     &fakeSender{},
		Sweeper:    sweeper,
		Tuner:      tuner,
		Logger:     testLogger(),
	})

	summary, err := c.RunOutcomeSweep(context.Background())
	if err != nil {
		t.Fatalf("RunOutcomeSweep: %v", err)
	}
	if summary.Resolved() != 5 {
		t.Fatalf("resolved = %d, want 5", summary.Resolved())
	}

	changes, err := c.RunLearning(context.Background())
	if err != nil {
		t.Fatalf("RunLearning: %v", err)
	}
	if len(changes) != 1 || changes[0].Direction != "up" {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	st := newFakeStore()
	snd := &fakeSender{}
	cfg := testConfig()
	cfg.PipelineInterval = 10 * time.Millisecond
	cfg.OutcomeInterval = 10 * time.Millisecond
	cfg.LearningInterval = 10 * time.Millisecond

	c := NewCoordinator(Deps{
		Cfg:        cfg,
		Store:      st,
		Normalizer: normalize.New(testLogger()),
		Dedup:      &fakeDedup{dups: map[string]bool{}},
		Matcher:    matching.NewMatcher(matching.DefaultWeights(), 1),
		Sender:     snd,
		Sweeper:    &fakeSweeper{},
		Tuner:      defaultTuner(),
		Logger:     testLogger(),
	})

	sched := NewScheduler(c, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	snd.mu.Lock()
	ran := len(snd.batches)
	snd.mu.Unlock()
	if ran == 0 {
		t.Fatal("scheduler never ran the pipeline")
	}
}
