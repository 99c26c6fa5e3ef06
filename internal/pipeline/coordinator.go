// Package pipeline wires scraping, normalization, matching, alerting, the
// outcome sweep and the learning loop into schedulable runs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jprome/auct-alert/internal/alert"
	"github.com/jprome/auct-alert/internal/config"
	"github.com/jprome/auct-alert/internal/learning"
	"github.com/jprome/auct-alert/internal/matching"
	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/normalize"
	"github.com/jprome/auct-alert/internal/outcome"
	"github.com/jprome/auct-alert/internal/pkg/metrics"
	"github.com/jprome/auct-alert/internal/pkg/queue"
	"github.com/jprome/auct-alert/internal/source"
)

// Store is the persistence surface the coordinator needs.
type Store interface {
	UpsertItem(ctx context.Context, item *model.AuctionItem) error
	ListOpenItems(ctx context.Context, now time.Time) ([]model.AuctionItem, error)
	ListActiveIntents(ctx context.Context) ([]model.UserIntent, error)
}

// AlertSender dispatches alerts for fresh matches.
type AlertSender interface {
	SendMatches(ctx context.Context, matches []matching.MatchResult, now time.Time) (alert.Summary, error)
}

// OutcomeSweeper resolves alerts on closed auctions.
type OutcomeSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (outcome.SweepSummary, error)
}

// ParamTuner reads and adjusts the learning parameters.
type ParamTuner interface {
	CurrentValue(ctx context.Context, name string) float64
	AnalyzeAndAdjust(ctx context.Context, days int, now time.Time) ([]learning.Change, error)
}

// Deduper filters listings already seen within the dedup window.
type Deduper interface {
	Seen(ctx context.Context, url string) (bool, error)
}

// Deps bundles everything a Coordinator needs.
type Deps struct {
	Cfg        *config.AppConfig
	Store      Store
	Scrapers   []source.Scraper
	Normalizer *normalize.Normalizer
	Dedup      Deduper
	Matcher    *matching.Matcher
	Sender     AlertSender
	Sweeper    OutcomeSweeper
	Tuner      ParamTuner
	Logger     *slog.Logger
}

// Coordinator owns the full scrape → normalize → match → alert pass and the
// two maintenance runs (outcome sweep, learning adjustment).
type Coordinator struct {
	cfg    *config.AppConfig
	store  Store
	deps   Deps
	queue  *queue.Queue
	logger *slog.Logger
	now    func() time.Time
}

func NewCoordinator(d Deps) *Coordinator {
	q := queue.NewQueue(d.Logger, d.Cfg.WorkerPoolSize, d.Cfg.QueueCapacity)
	q.SetErrorHandler(func(err error, _ queue.Job) {
		d.Logger.Error("pipeline job failed", slog.String("error", err.Error()))
	})

	return &Coordinator{
		cfg:    d.Cfg,
		store:  d.Store,
		deps:   d,
		queue:  q,
		logger: d.Logger,
		now:    time.Now,
	}
}

// Start launches the worker pool. Must be called before RunFull.
func (c *Coordinator) Start(ctx context.Context) {
	c.queue.Start(ctx)
}

// Shutdown drains the worker pool, giving up after the timeout.
func (c *Coordinator) Shutdown(timeout time.Duration) {
	if err := c.queue.ShutdownWithTimeout(timeout); err != nil {
		c.logger.Error("pipeline queue shutdown", slog.String("error", err.Error()))
	}
}

// RunSummary reports what one full pipeline pass did.
type RunSummary struct {
	Scraped    int
	Duplicates int
	Malformed  int
	Upserted   int
	Matches    int
	Alerts     alert.Summary
	Elapsed    time.Duration
}

// RunFull executes one scrape → normalize → match → alert pass. Per-source
// and per-item failures are logged and skipped; only failure to list
// intents or items aborts the run.
func (c *Coordinator) RunFull(ctx context.Context) (RunSummary, error) {
	start := c.now()
	now := start.UTC()
	var sum RunSummary

	raws := c.scrapeAll(ctx)
	sum.Scraped = len(raws)

	fresh := make([]source.RawListing, 0, len(raws))
	for i := range raws {
		raw := &raws[i]
		dup, err := c.deps.Dedup.Seen(ctx, raw.SourceURL)
		if err != nil {
			// Redis trouble degrades dedup to a no-op rather than
			// stalling the run.
			c.logger.Warn("dedup check failed",
				slog.String("url", raw.SourceURL),
				slog.String("error", err.Error()))
		}
		if dup {
			sum.Duplicates++
			metrics.ListingsSkippedTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		fresh = append(fresh, *raw)
	}

	items := c.deps.Normalizer.NormalizeBatch(fresh, now)
	sum.Malformed = len(fresh) - len(items)
	if sum.Malformed > 0 {
		metrics.ListingsSkippedTotal.WithLabelValues("malformed").Add(float64(sum.Malformed))
	}

	for _, item := range items {
		if err := c.store.UpsertItem(ctx, item); err != nil {
			c.logger.Warn("upsert item failed",
				slog.String("item_id", item.ItemID),
				slog.String("error", err.Error()))
			continue
		}
		sum.Upserted++
		metrics.ItemsUpsertedTotal.Inc()
	}

	intents, err := c.store.ListActiveIntents(ctx)
	if err != nil {
		return sum, fmt.Errorf("list active intents: %w", err)
	}
	if len(intents) == 0 {
		intents = []model.UserIntent{c.defaultIntent(ctx, now)}
	}

	open, err := c.store.ListOpenItems(ctx, now)
	if err != nil {
		return sum, fmt.Errorf("list open items: %w", err)
	}

	matches := c.deps.Matcher.MatchAll(ctx, open, intents, now)
	sum.Matches = len(matches)
	metrics.MatchesFoundTotal.Add(float64(len(matches)))

	alertSum, sendErr := c.deps.Sender.SendMatches(ctx, matches, now)
	sum.Alerts = alertSum
	metrics.AlertsCreatedTotal.Add(float64(alertSum.Created))
	metrics.AlertsSentTotal.Add(float64(alertSum.Sent))
	metrics.AlertSendErrorsTotal.Add(float64(alertSum.Failures))

	sum.Elapsed = time.Since(start)
	metrics.PipelineRunSeconds.Observe(sum.Elapsed.Seconds())

	c.logger.Info("pipeline run completed",
		slog.Int("scraped", sum.Scraped),
		slog.Int("duplicates", sum.Duplicates),
		slog.Int("malformed", sum.Malformed),
		slog.Int("upserted", sum.Upserted),
		slog.Int("matches", sum.Matches),
		slog.Int("alerts_created", sum.Alerts.Created),
		slog.Int("alerts_sent", sum.Alerts.Sent),
		slog.String("elapsed", sum.Elapsed.String()))

	if sendErr != nil {
		return sum, fmt.Errorf("send alerts: %w", sendErr)
	}
	return sum, nil
}

// scrapeAll fans one job per source out on the worker pool and collects
// the listings. A failed source contributes zero items.
func (c *Coordinator) scrapeAll(ctx context.Context) []source.RawListing {
	var mu sync.Mutex
	var all []source.RawListing
	var wg sync.WaitGroup

	for _, sc := range c.deps.Scrapers {
		sc := sc
		wg.Add(1)
		job := func(ctx context.Context) error {
			defer wg.Done()

			listings, err := sc.FetchListings(ctx)
			if err != nil {
				metrics.ScrapeErrorsTotal.WithLabelValues(string(sc.Source())).Inc()
				return fmt.Errorf("scrape %s: %w", sc.Source(), err)
			}
			metrics.ItemsScrapedTotal.WithLabelValues(string(sc.Source())).Add(float64(len(listings)))

			mu.Lock()
			all = append(all, listings...)
			mu.Unlock()
			return nil
		}

		if err := c.queue.EnqueueBlocking(ctx, job); err != nil {
			wg.Done()
			c.logger.Warn("enqueue scrape job failed",
				slog.String("source", string(sc.Source())),
				slog.String("error", err.Error()))
		}
	}

	wg.Wait()
	metrics.QueueDepth.Set(float64(c.queue.Len()))
	return all
}

// defaultIntent is the standing search used when no user intents exist:
// a dining table within budget and driving distance of the reference
// point. Its tunables come from the live learning parameters.
func (c *Coordinator) defaultIntent(ctx context.Context, now time.Time) model.UserIntent {
	return model.UserIntent{
		IntentID:            "intent_default",
		Category:            model.CategoryFurniture,
		Subtype:             model.SubtypeDiningTable,
		Keywords:            []string{"dining", "table", "dining table"},
		MaxPrice:            c.deps.Tuner.CurrentValue(ctx, learning.ParamMaxPrice),
		MaxDistanceMiles:    c.deps.Tuner.CurrentValue(ctx, learning.ParamMaxDistanceMiles),
		ReferenceLat:        c.cfg.ReferenceLat,
		ReferenceLng:        c.cfg.ReferenceLng,
		MinHoursBeforeClose: 2,
		MaxHoursBeforeClose: int(c.deps.Tuner.CurrentValue(ctx, learning.ParamMaxHoursBeforeClose)),
		ConfidenceThreshold: c.deps.Tuner.CurrentValue(ctx, learning.ParamConfidenceThreshold),
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// RunOutcomeSweep resolves alerts whose auctions have closed.
func (c *Coordinator) RunOutcomeSweep(ctx context.Context) (outcome.SweepSummary, error) {
	summary, err := c.deps.Sweeper.SweepExpired(ctx, c.now().UTC())
	if err != nil {
		return summary, err
	}
	metrics.OutcomesResolvedTotal.WithLabelValues(string(model.OutcomeExpired)).Add(float64(summary.Expired))
	metrics.OutcomesResolvedTotal.WithLabelValues(string(model.OutcomeIgnored)).Add(float64(summary.Ignored))
	return summary, nil
}

// RunLearning applies one learning-loop adjustment pass.
func (c *Coordinator) RunLearning(ctx context.Context) ([]learning.Change, error) {
	changes, err := c.deps.Tuner.AnalyzeAndAdjust(ctx, c.cfg.LearningWindowDays, c.now().UTC())
	if err != nil {
		return nil, err
	}
	for _, ch := range changes {
		metrics.ParamAdjustmentsTotal.WithLabelValues(ch.Param, ch.Direction).Inc()
	}
	return changes, nil
}
