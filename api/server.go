package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brettboylen/creator-pulse/alerts"
	"github.com/brettboylen/creator-pulse/models"
	"github.com/brettboylen/creator-pulse/stats"
)

// History kinds accepted by the history endpoints
const (
	KindAlert   = "alert"
	KindInsight = "insight"
)

// AlertService evaluates alert detectors on demand
type AlertService interface {
	Types() []string
	Evaluate(ctx context.Context, alertType string, req alerts.Request) (*models.DetectedEvent, error)
	EvaluateAny(ctx context.Context, req alerts.Request) *models.DetectedEvent
}

// InsightService produces fallback insights on demand
type InsightService interface {
	Generate(ctx context.Context, creator models.Creator, history []models.HistoryEntry, now time.Time) *models.DetectedEvent
}

// Store is the persistence used by the handlers
type Store interface {
	Ping(ctx context.Context) error
	GetCreator(ctx context.Context, id string) (*models.Creator, error)
	GetAlertHistory(ctx context.Context, creatorID string, since time.Time) ([]models.HistoryEntry, error)
	GetInsightHistory(ctx context.Context, creatorID string, since time.Time) ([]models.HistoryEntry, error)
	GetDialogueState(ctx context.Context, creatorID string) (models.DialogueState, error)
	AppendHistory(ctx context.Context, kind, creatorID string, entry models.HistoryEntry) error
}

// StatsProvider reports the latest scheduled runs
type StatsProvider interface {
	Statistics() map[string]stats.RunSummary
}

// Options wires the server dependencies
type Options struct {
	Store                Store
	Alerts               AlertService
	Insights             InsightService
	Stats                StatsProvider
	Ingestor             Ingestor
	MetricsHandler       http.Handler
	MaxRequestsPerMinute int
	HistoryDays          int
}

// Server is the HTTP API over the alert and insight engines
type Server struct {
	echo *echo.Echo
	opts Options
	log  *logrus.Logger
	now  func() time.Time
}

// HistoryRequest confirms that an event was delivered to a creator
type HistoryRequest struct {
	Kind      string         `json:"kind"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	Timestamp *time.Time     `json:"timestamp"`
}

// NewServer creates the echo server with all routes registered
func NewServer(opts Options, log *logrus.Logger) *Server {
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 90
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = goccySerializer{}

	s := &Server{echo: e, opts: opts, log: log, now: time.Now}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(logrus.Fields{
				"method":    v.Method,
				"uri":       v.URI,
				"status":    v.Status,
				"latency":   v.Latency.String(),
				"remote_ip": v.RemoteIP,
			}).Debug("Request handled")
			return nil
		},
	}))
	if opts.MaxRequestsPerMinute > 0 {
		e.Use(rateLimiter(opts.MaxRequestsPerMinute))
	}

	e.GET("/healthz", s.health)
	if opts.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(opts.MetricsHandler))
	}

	g := e.Group("/api")
	g.GET("/stats", s.statistics)
	g.GET("/creators/:id/alerts", s.anyAlert)
	g.GET("/creators/:id/alerts/:type", s.alert)
	g.GET("/creators/:id/insight", s.insight)
	g.GET("/creators/:id/history", s.history)
	g.POST("/creators/:id/history", s.recordHistory)
	s.registerIngestRoutes(g)

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) {
	go func() {
		serverAddr := fmt.Sprintf(":%d", port)
		s.log.WithField("port", port).Info("Starting API server")
		if err := s.echo.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("API server failed")
		}
	}()

	<-ctx.Done()
	s.log.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Error("API server shutdown failed")
	}
}

// rateLimiter limits each client IP to requestsPerMinute
func rateLimiter(requestsPerMinute int) echo.MiddlewareFunc {
	deny := func(ctx echo.Context, _ string, _ error) error {
		return ctx.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Rate limit exceeded, please try again later",
		})
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz" || c.Path() == "/metrics"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(requestsPerMinute) / 60.0),
				Burst:     requestsPerMinute,
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return deny(ctx, "", err)
		},
		DenyHandler: deny,
	})
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func (s *Server) health(c echo.Context) error {
	if err := s.opts.Store.Ping(c.Request().Context()); err != nil {
		s.log.WithError(err).Error("Health check failed")
		return c.String(http.StatusServiceUnavailable, "database unavailable")
	}
	return c.String(http.StatusOK, "OK")
}

func (s *Server) statistics(c echo.Context) error {
	if s.opts.Stats == nil {
		return c.JSON(http.StatusOK, map[string]stats.RunSummary{})
	}
	return c.JSON(http.StatusOK, s.opts.Stats.Statistics())
}

// creator resolves the :id param, writing a 404 when the creator is unknown
func (s *Server) creator(c echo.Context) (*models.Creator, error) {
	id := c.Param("id")
	creator, err := s.opts.Store.GetCreator(c.Request().Context(), id)
	if err != nil {
		s.log.WithError(err).WithField("creator_id", id).Error("Failed to load creator")
		return nil, errorJSON(c, http.StatusInternalServerError, "failed to load creator")
	}
	if creator == nil {
		return nil, errorJSON(c, http.StatusNotFound, fmt.Sprintf("creator %s not found", id))
	}
	return creator, nil
}

func (s *Server) alertRequest(c echo.Context, creatorID string) (alerts.Request, error) {
	ctx := c.Request().Context()
	now := s.now()

	history, err := s.opts.Store.GetAlertHistory(ctx, creatorID, now.AddDate(0, 0, -s.opts.HistoryDays))
	if err != nil {
		return alerts.Request{}, fmt.Errorf("failed to load alert history: %w", err)
	}
	state, err := s.opts.Store.GetDialogueState(ctx, creatorID)
	if err != nil {
		return alerts.Request{}, fmt.Errorf("failed to load dialogue state: %w", err)
	}
	return alerts.Request{CreatorID: creatorID, Today: now, History: history, Dialogue: state}, nil
}

func (s *Server) alert(c echo.Context) error {
	creator, err := s.creator(c)
	if creator == nil {
		return err
	}

	req, err := s.alertRequest(c, creator.ID)
	if err != nil {
		s.log.WithError(err).WithField("creator_id", creator.ID).Error("Failed to prepare alert request")
		return errorJSON(c, http.StatusInternalServerError, "failed to load creator history")
	}

	alertType := c.Param("type")
	event, err := s.opts.Alerts.Evaluate(c.Request().Context(), alertType, req)
	if errors.Is(err, alerts.ErrUnknownAlertType) {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("unknown alert type %s, expected one of %s",
			alertType, strings.Join(s.opts.Alerts.Types(), ", ")))
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	if event == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, event)
}

func (s *Server) anyAlert(c echo.Context) error {
	creator, err := s.creator(c)
	if creator == nil {
		return err
	}

	req, err := s.alertRequest(c, creator.ID)
	if err != nil {
		s.log.WithError(err).WithField("creator_id", creator.ID).Error("Failed to prepare alert request")
		return errorJSON(c, http.StatusInternalServerError, "failed to load creator history")
	}

	event := s.opts.Alerts.EvaluateAny(c.Request().Context(), req)
	if event == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, event)
}

func (s *Server) insight(c echo.Context) error {
	creator, err := s.creator(c)
	if creator == nil {
		return err
	}

	now := s.now()
	history, err := s.opts.Store.GetInsightHistory(c.Request().Context(), creator.ID, now.AddDate(0, 0, -s.opts.HistoryDays))
	if err != nil {
		s.log.WithError(err).WithField("creator_id", creator.ID).Warn("Failed to load insight history")
		history = nil
	}

	event := s.opts.Insights.Generate(c.Request().Context(), *creator, history, now)
	return c.JSON(http.StatusOK, event)
}

func (s *Server) history(c echo.Context) error {
	creator, err := s.creator(c)
	if creator == nil {
		return err
	}

	kind := c.QueryParam("kind")
	if kind == "" {
		kind = KindAlert
	}
	since := s.now().AddDate(0, 0, -s.opts.HistoryDays)

	var entries []models.HistoryEntry
	switch kind {
	case KindAlert:
		entries, err = s.opts.Store.GetAlertHistory(c.Request().Context(), creator.ID, since)
	case KindInsight:
		entries, err = s.opts.Store.GetInsightHistory(c.Request().Context(), creator.ID, since)
	default:
		return errorJSON(c, http.StatusBadRequest, fmt.Sprintf("unknown history kind %s", kind))
	}
	if err != nil {
		s.log.WithError(err).WithField("creator_id", creator.ID).Error("Failed to load history")
		return errorJSON(c, http.StatusInternalServerError, "failed to load history")
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) recordHistory(c echo.Context) error {
	creator, err := s.creator(c)
	if creator == nil {
		return err
	}

	var body HistoryRequest
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if body.Kind != KindAlert && body.Kind != KindInsight {
		return errorJSON(c, http.StatusBadRequest, "kind must be alert or insight")
	}
	if strings.TrimSpace(body.Type) == "" {
		return errorJSON(c, http.StatusBadRequest, "type is required")
	}

	entry := models.HistoryEntry{
		Type:      body.Type,
		Timestamp: s.now(),
		Message:   body.Message,
		Details:   body.Details,
	}
	if body.Timestamp != nil && !body.Timestamp.IsZero() {
		entry.Timestamp = body.Timestamp.UTC()
	}

	if err := s.opts.Store.AppendHistory(c.Request().Context(), body.Kind, creator.ID, entry); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"creator_id": creator.ID,
			"kind":       body.Kind,
			"type":       body.Type,
		}).Error("Failed to record history")
		return errorJSON(c, http.StatusInternalServerError, "failed to record history")
	}
	return c.JSON(http.StatusCreated, entry)
}
