// Package api serves the click-tracking redirect and the JWT-protected
// admin surface (intents, learning parameters, outcome stats).
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jprome/auct-alert/internal/api/middleware"
	"github.com/jprome/auct-alert/internal/config"
	"github.com/jprome/auct-alert/internal/learning"
	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/outcome"
	"github.com/jprome/auct-alert/internal/pkg/metrics"
	"github.com/jprome/auct-alert/internal/store"
)

// Store is the persistence surface the server needs.
type Store interface {
	GetItem(ctx context.Context, itemID string) (*model.AuctionItem, error)
	CreateIntent(ctx context.Context, intent *model.UserIntent) error
	ListActiveIntents(ctx context.Context) ([]model.UserIntent, error)
	ListParameters(ctx context.Context) ([]model.LearningParameter, error)
}

// Tracker handles clicks and outcome reads/writes.
type Tracker interface {
	RecordClick(ctx context.Context, token string, now time.Time) (*model.Alert, error)
	SetOutcome(ctx context.Context, alertID string, outcome model.AlertOutcome, now time.Time) error
	GetStats(ctx context.Context, days int, now time.Time) (outcome.Stats, error)
}

// Learner exposes the parameter history and manual revert.
type Learner interface {
	History(ctx context.Context, name string, limit int) ([]model.ParameterChange, error)
	RevertLast(ctx context.Context, name string, now time.Time) (*learning.Change, error)
}

// Server wires the HTTP routes to the store, tracker and learner.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	router  *gin.Engine
	store   Store
	tracker Tracker
	learner Learner
}

func NewServer(cfg *config.Config, logger *slog.Logger, st Store, tracker Tracker, learner Learner) *Server {
	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		router:  r,
		store:   st,
		tracker: tracker,
		learner: learner,
	}
	s.registerRoutes()
	return s
}

// Router returns the HTTP handler for mounting on an http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/click/:token", s.handleClick)

	admin := s.router.Group("/admin")
	admin.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	admin.POST("/intents", s.handleCreateIntent)
	admin.GET("/intents", s.handleListIntents)
	admin.GET("/params", s.handleListParams)
	admin.GET("/params/:name/history", s.handleParamHistory)
	admin.POST("/params/:name/revert", s.handleRevertParam)
	admin.GET("/stats", s.handleStats)
	admin.POST("/alerts/:id/outcome", s.handleSetOutcome)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleClick resolves a tracking token, records the click and redirects
// the browser to the listing. Recording is idempotent.
func (s *Server) handleClick(c *gin.Context) {
	token := c.Param("token")
	now := time.Now().UTC()

	alert, err := s.tracker.RecordClick(c.Request.Context(), token, now)
	if errors.Is(err, store.ErrNotFound) {
		c.String(http.StatusNotFound, "unknown alert")
		return
	}
	if err != nil {
		s.logger.Error("record click failed",
			slog.String("token", token),
			slog.String("error", err.Error()))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	metrics.ClicksRecordedTotal.Inc()

	item, err := s.store.GetItem(c.Request.Context(), alert.ItemID)
	if err != nil {
		c.String(http.StatusNotFound, "listing no longer available")
		return
	}
	c.Redirect(http.StatusFound, item.SourceURL)
}

type createIntentRequest struct {
	UserEmail           string   `json:"user_email" binding:"required,email"`
	Category            string   `json:"category" binding:"required"`
	Subtype             string   `json:"subtype"`
	Keywords            []string `json:"keywords"`
	MaxPrice            float64  `json:"max_price"`
	MaxDistanceMiles    float64  `json:"max_distance_miles"`
	ReferenceLat        *float64 `json:"reference_lat"`
	ReferenceLng        *float64 `json:"reference_lng"`
	MinHoursBeforeClose int      `json:"min_hours_before_close"`
	MaxHoursBeforeClose int      `json:"max_hours_before_close"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
}

func (s *Server) handleCreateIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category := model.ItemCategory(strings.ToLower(req.Category))
	if !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}
	subtype := model.ItemSubtype(strings.ToLower(req.Subtype))
	if subtype != model.SubtypeAny && !subtype.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subtype"})
		return
	}

	now := time.Now().UTC()
	intent := &model.UserIntent{
		IntentID:            "intent_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		UserID:              getUserID(c),
		UserEmail:           req.UserEmail,
		Category:            category,
		Subtype:             subtype,
		Keywords:            req.Keywords,
		MaxPrice:            req.MaxPrice,
		MaxDistanceMiles:    req.MaxDistanceMiles,
		ReferenceLat:        s.cfg.App.ReferenceLat,
		ReferenceLng:        s.cfg.App.ReferenceLng,
		MinHoursBeforeClose: req.MinHoursBeforeClose,
		MaxHoursBeforeClose: req.MaxHoursBeforeClose,
		ConfidenceThreshold: req.ConfidenceThreshold,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.ReferenceLat != nil && req.ReferenceLng != nil {
		intent.ReferenceLat = *req.ReferenceLat
		intent.ReferenceLng = *req.ReferenceLng
	}
	applyIntentDefaults(intent)

	if err := s.store.CreateIntent(c.Request.Context(), intent); err != nil {
		s.logger.Error("create intent failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create intent failed"})
		return
	}
	c.JSON(http.StatusCreated, intent)
}

// applyIntentDefaults fills unset numeric fields with the documented
// defaults for the dining table search.
func applyIntentDefaults(intent *model.UserIntent) {
	if intent.MaxPrice <= 0 {
		intent.MaxPrice = 1200
	}
	if intent.MaxDistanceMiles <= 0 {
		intent.MaxDistanceMiles = 100
	}
	if intent.MaxHoursBeforeClose <= 0 {
		intent.MaxHoursBeforeClose = 48
	}
	if intent.MinHoursBeforeClose <= 0 {
		intent.MinHoursBeforeClose = 2
	}
	if intent.ConfidenceThreshold <= 0 {
		intent.ConfidenceThreshold = 0.6
	}
}

func (s *Server) handleListIntents(c *gin.Context) {
	intents, err := s.store.ListActiveIntents(c.Request.Context())
	if err != nil {
		s.logger.Error("list intents failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list intents failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intents": intents})
}

func (s *Server) handleListParams(c *gin.Context) {
	params, err := s.store.ListParameters(c.Request.Context())
	if err != nil {
		s.logger.Error("list parameters failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list parameters failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"parameters": params})
}

func (s *Server) handleParamHistory(c *gin.Context) {
	name := c.Param("name")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	history, err := s.learner.History(c.Request.Context(), name, limit)
	if err != nil {
		s.logger.Error("parameter history failed",
			slog.String("param", name),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"param": name, "history": history})
}

func (s *Server) handleRevertParam(c *gin.Context) {
	name := c.Param("name")
	change, err := s.learner.RevertLast(c.Request.Context(), name, time.Now().UTC())
	if errors.Is(err, learning.ErrNoPreviousValue) {
		c.JSON(http.StatusConflict, gin.H{"error": "nothing to revert"})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown parameter"})
		return
	}
	if err != nil {
		s.logger.Error("revert parameter failed",
			slog.String("param", name),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revert failed"})
		return
	}
	c.JSON(http.StatusOK, change)
}

func (s *Server) handleStats(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(s.cfg.App.StatsWindowDays)))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
		return
	}

	stats, err := s.tracker.GetStats(c.Request.Context(), days, time.Now().UTC())
	if err != nil {
		s.logger.Error("outcome stats failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"window_days":   days,
		"stats":         stats,
		"click_rate":    stats.ClickRate(),
		"response_rate": stats.ResponseRate(),
	})
}

type setOutcomeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

func (s *Server) handleSetOutcome(c *gin.Context) {
	var req setOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alertID := c.Param("id")
	oc := model.AlertOutcome(strings.ToLower(req.Outcome))
	if !oc.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid outcome"})
		return
	}

	err := s.tracker.SetOutcome(c.Request.Context(), alertID, oc, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown alert"})
		return
	}
	if err != nil {
		s.logger.Error("set outcome failed",
			slog.String("alert_id", alertID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "set outcome failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert_id": alertID, "outcome": oc})
}

func getUserID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
