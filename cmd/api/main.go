package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jprome/auct-alert/internal/api"
	"github.com/jprome/auct-alert/internal/config"
	"github.com/jprome/auct-alert/internal/learning"
	"github.com/jprome/auct-alert/internal/outcome"
	"github.com/jprome/auct-alert/internal/pkg/logger"
	"github.com/jprome/auct-alert/internal/pkg/metrics"
	"github.com/jprome/auct-alert/internal/store"
)

// main runs the HTTP surface: the click-tracking redirect, /metrics,
// /healthz and the JWT-protected admin API.
func main() {
	cfg, err := config.Load()
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

	tracker := outcome.NewTracker(st, appLogger)
	learner := learning.NewLoop(st, tracker, appLogger)

	srv := api.NewServer(cfg, appLogger, st, tracker, learner)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTPAddr,
		Handler: srv.Router(),
	}

	go func() {
		appLogger.Info("api server listening", slog.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server run failed", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down api server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
}
