package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jprome/auct-alert/internal/alert"
	"github.com/jprome/auct-alert/internal/config"
	"github.com/jprome/auct-alert/internal/learning"
	"github.com/jprome/auct-alert/internal/matching"
	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/normalize"
	"github.com/jprome/auct-alert/internal/outcome"
	"github.com/jprome/auct-alert/internal/pipeline"
	"github.com/jprome/auct-alert/internal/pkg/dedup"
	"github.com/jprome/auct-alert/internal/pkg/logger"
	"github.com/jprome/auct-alert/internal/pkg/metrics"
	"github.com/jprome/auct-alert/internal/pkg/notify"
	"github.com/jprome/auct-alert/internal/pkg/ratelimit"
	"github.com/jprome/auct-alert/internal/source"
	"github.com/jprome/auct-alert/internal/store"
)

// main runs the batch side of the system. Modes:
//
//	run       one scrape → match → alert pass
//	outcomes  one expiry sweep
//	learn     one learning-loop adjustment pass
//	schedule  all three on their tickers until interrupted
//	setup     seed learning parameters and create an intent for --email
func main() {
	mode := flag.String("mode", "schedule", "run | outcomes | learn | schedule | setup")
	email := flag.String("email", "", "alert recipient for --mode setup")
	configPath := flag.String("config", "", "path to config.json")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.InitMetrics()

	st, err := store.Open(cfg.MySQL.DSN)
	if err != nil {
		appLogger.Error("open store failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		appLogger.Warn("redis unavailable, dedup and rate limiting degrade to no-ops",
			slog.String("error", err.Error()))
	}

	tracker := outcome.NewTracker(st, appLogger)
	learner := learning.NewLoop(st, tracker, appLogger)

	if err := learner.InitializeParams(ctx); err != nil {
		appLogger.Error("seed learning parameters failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	switch *mode {
	case "setup":
		if *email == "" {
			log.Fatal("--mode setup requires --email")
		}
		if err := createDefaultIntent(ctx, cfg, st, *email); err != nil {
			appLogger.Error("create intent failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		appLogger.Info("setup completed", slog.String("email", *email))
		return

	case "outcomes":
		coord := buildCoordinator(cfg, st, rdb, tracker, learner, appLogger, nil)
		summary, err := coord.RunOutcomeSweep(ctx)
		if err != nil {
			appLogger.Error("outcome sweep failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		appLogger.Info("outcome sweep done",
			slog.Int("expired", summary.Expired),
			slog.Int("ignored", summary.Ignored))
		return

	case "learn":
		coord := buildCoordinator(cfg, st, rdb, tracker, learner, appLogger, nil)
		changes, err := coord.RunLearning(ctx)
		if err != nil {
			appLogger.Error("learning run failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		appLogger.Info("learning run done", slog.Int("changes", len(changes)))
		return
	}

	hibid := source.NewHiBidScraper(cfg.Browser, st, appLogger)
	defer hibid.Close()

	coord := buildCoordinator(cfg, st, rdb, tracker, learner, appLogger, hibid)

	switch *mode {
	case "run":
		coord.Start(ctx)
		defer coord.Shutdown(30 * time.Second)
		if _, err := coord.RunFull(ctx); err != nil {
			appLogger.Error("pipeline run failed", slog.String("error", err.Error()))
			os.Exit(1)
		}

	case "schedule":
		sched := pipeline.NewScheduler(coord, &cfg.App, appLogger)
		sched.Run(ctx)

	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

// buildCoordinator wires the scrapers, matcher and alert sender. The hibid
// scraper is optional so maintenance modes never launch a browser.
func buildCoordinator(cfg *config.Config, st *store.Store, rdb *redis.Client, tracker *outcome.Tracker, learner *learning.Loop, appLogger *slog.Logger, hibid *source.HiBidScraper) *pipeline.Coordinator {
	var scrapers []source.Scraper

	estateLimiter := ratelimit.NewSourceLimiter(rdb, appLogger, string(model.SourceEstateSales), cfg.App.RateLimit, cfg.App.RateBurst)
	estateFetcher := source.NewFetcher(cfg.App.RequestTimeout, estateLimiter, st, appLogger)
	scrapers = append(scrapers, source.NewEstateSalesScraper(estateFetcher, appLogger))

	surplusLimiter := ratelimit.NewSourceLimiter(rdb, appLogger, string(model.SourceFloridaSurplus), cfg.App.RateLimit, cfg.App.RateBurst)
	surplusFetcher := source.NewFetcher(cfg.App.RequestTimeout, surplusLimiter, st, appLogger)
	scrapers = append(scrapers, source.NewFloridaSurplusScraper(surplusFetcher, appLogger))

	if hibid != nil {
		scrapers = append(scrapers, hibid)
	}

	notifier := notify.NewEmailNotifier(&cfg.Email, appLogger)
	sender := alert.NewSender(st, notifier, cfg.App.TrackingBaseURL, appLogger)

	return pipeline.NewCoordinator(pipeline.Deps{
		Cfg:        &cfg.App,
		Store:      st,
		Scrapers:   scrapers,
		Normalizer: normalize.New(appLogger),
		Dedup:      dedup.NewDeduplicator(rdb, time.Duration(cfg.App.DedupWindow)*time.Second),
		Matcher:    matching.NewMatcher(matching.DefaultWeights(), cfg.App.WorkerPoolSize),
		Sender:     sender,
		Sweeper:    tracker,
		Tuner:      learner,
		Logger:     appLogger,
	})
}

// createDefaultIntent stores the documented dining table search for the
// given recipient.
func createDefaultIntent(ctx context.Context, cfg *config.Config, st *store.Store, email string) error {
	now := time.Now().UTC()
	return st.CreateIntent(ctx, &model.UserIntent{
		IntentID:            "intent_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		UserEmail:           email,
		Category:            model.CategoryFurniture,
		Subtype:             model.SubtypeDiningTable,
		Keywords:            []string{"dining", "table", "dining table"},
		MaxPrice:            1200,
		MaxDistanceMiles:    100,
		ReferenceLat:        cfg.App.ReferenceLat,
		ReferenceLng:        cfg.App.ReferenceLng,
		MinHoursBeforeClose: 2,
		MaxHoursBeforeClose: 48,
		ConfidenceThreshold: 0.6,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	})
}
