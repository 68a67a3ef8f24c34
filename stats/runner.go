package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/brettboylen/creator-pulse/alerts"
	"github.com/brettboylen/creator-pulse/metrics"
	"github.com/brettboylen/creator-pulse/models"
)

// Event kinds
const (
	KindAlert   = "alert"
	KindInsight = "insight"
)

// Store is the persistence the runner needs besides the engines' own readers
type Store interface {
	ListCreators(ctx context.Context) ([]models.Creator, error)
	GetAlertHistory(ctx context.Context, creatorID string, since time.Time) ([]models.HistoryEntry, error)
	GetInsightHistory(ctx context.Context, creatorID string, since time.Time) ([]models.HistoryEntry, error)
	GetDialogueState(ctx context.Context, creatorID string) (models.DialogueState, error)
	AppendAlertHistory(ctx context.Context, creatorID string, entry models.HistoryEntry) error
	AppendInsightHistory(ctx context.Context, creatorID string, entry models.HistoryEntry) error
}

// AlertEvaluator evaluates one alert type for a creator
type AlertEvaluator interface {
	Types() []string
	Evaluate(ctx context.Context, alertType string, req alerts.Request) (*models.DetectedEvent, error)
}

// InsightGenerator produces the fallback insight for a creator
type InsightGenerator interface {
	Generate(ctx context.Context, creator models.Creator, history []models.HistoryEntry, now time.Time) *models.DetectedEvent
}

// Config controls scheduling and fan-out
type Config struct {
	AlertSchedule   string
	InsightSchedule string
	Concurrency     int
	RatePerSecond   float64
	Burst           int
	HistoryDays     int
}

// RunSummary describes one completed run
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Type       string    `json:"type,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Creators   int       `json:"creators"`
	Detected   int       `json:"detected"`
	Delivered  int       `json:"delivered"`
	Failed     int       `json:"failed"`
}

// Runner evaluates every creator on a schedule and hands events to a Notifier
type Runner struct {
	store    Store
	alerts   AlertEvaluator
	insights InsightGenerator
	notifier Notifier
	metrics  *metrics.Metrics
	cfg      Config
	log      *logrus.Logger

	cron    *cron.Cron
	limiter *rate.Limiter
	now     func() time.Time

	mutex     sync.RWMutex
	nextAlert int
	lastRuns  map[string]RunSummary
}

// NewRunner creates a runner. A nil notifier logs events instead of delivering them.
func NewRunner(
	store Store,
	alertEngine AlertEvaluator,
	insightEngine InsightGenerator,
	notifier Notifier,
	m *metrics.Metrics,
	cfg Config,
	log *logrus.Logger,
) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 90
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}

	return &Runner{
		store:    store,
		alerts:   alertEngine,
		insights: insightEngine,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		log:      log,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log)))),
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		now:      time.Now,
		lastRuns: make(map[string]RunSummary),
	}
}

// Start schedules the alert and insight runs and blocks until ctx is done
func (r *Runner) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.cfg.AlertSchedule, func() {
		if _, err := r.RunAlerts(ctx); err != nil {
			r.log.WithError(err).Error("Alert run failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid alert schedule %q: %w", r.cfg.AlertSchedule, err)
	}

	if _, err := r.cron.AddFunc(r.cfg.InsightSchedule, func() {
		if _, err := r.RunInsights(ctx); err != nil {
			r.log.WithError(err).Error("Insight run failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid insight schedule %q: %w", r.cfg.InsightSchedule, err)
	}

	r.log.WithFields(logrus.Fields{
		"alert_schedule":   r.cfg.AlertSchedule,
		"insight_schedule": r.cfg.InsightSchedule,
		"concurrency":      r.cfg.Concurrency,
	}).Info("Runner started")
	r.cron.Start()

	<-ctx.Done()
	r.log.Info("Stopping runner, waiting for running jobs")
	<-r.cron.Stop().Done()
	return ctx.Err()
}

// RunAlerts evaluates the next alert type in rotation for every creator
func (r *Runner) RunAlerts(ctx context.Context) (RunSummary, error) {
	alertType := r.nextAlertType()
	if alertType == "" {
		return RunSummary{}, errors.New("no alert types registered")
	}
	return r.RunAlertType(ctx, alertType)
}

// RunAlertType evaluates one alert type for every creator
func (r *Runner) RunAlertType(ctx context.Context, alertType string) (RunSummary, error) {
	return r.run(ctx, KindAlert, alertType, func(ctx context.Context, creator models.Creator) (bool, bool, error) {
		return r.processAlert(ctx, creator, alertType)
	})
}

// RunInsights produces and delivers a fallback insight for every creator
func (r *Runner) RunInsights(ctx context.Context) (RunSummary, error) {
	return r.run(ctx, KindInsight, "", r.processInsight)
}

// Statistics returns the most recent run of each kind
func (r *Runner) Statistics() map[string]RunSummary {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make(map[string]RunSummary, len(r.lastRuns))
	for k, v := range r.lastRuns {
		out[k] = v
	}
	return out
}

func (r *Runner) nextAlertType() string {
	types := r.alerts.Types()
	if len(types) == 0 {
		return ""
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	alertType := types[r.nextAlert%len(types)]
	r.nextAlert++
	return alertType
}

// processFunc handles one creator and reports whether something was detected and delivered
type processFunc func(ctx context.Context, creator models.Creator) (detected, delivered bool, err error)

func (r *Runner) run(ctx context.Context, kind, eventType string, process processFunc) (RunSummary, error) {
	summary := RunSummary{
		RunID:     fmt.Sprintf("%s-%s", kind, uuid.New().String()),
		Kind:      kind,
		Type:      eventType,
		StartedAt: r.now(),
	}
	logEntry := r.log.WithFields(logrus.Fields{
		"run_id": summary.RunID,
		"kind":   kind,
		"type":   eventType,
	})
	r.metrics.ObserveRun(kind)

	creators, err := r.store.ListCreators(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list creators: %w", err)
	}
	summary.Creators = len(creators)
	logEntry.WithField("creators", len(creators)).Info("Run started")

	var detected, delivered, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	for _, creator := range creators {
		creator := creator
		g.Go(func() error {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
			found, sent, err := process(ctx, creator)
			if found {
				detected.Add(1)
			}
			if sent {
				delivered.Add(1)
			}
			if err != nil {
				failed.Add(1)
				logEntry.WithError(err).WithField("creator_id", creator.ID).Error("Failed to process creator")
			}
			return nil
		})
	}

	err = g.Wait()
	summary.Detected = int(detected.Load())
	summary.Delivered = int(delivered.Load())
	summary.Failed = int(failed.Load())
	summary.FinishedAt = r.now()

	r.mutex.Lock()
	r.lastRuns[kind] = summary
	r.mutex.Unlock()

	logEntry.WithFields(logrus.Fields{
		"detected":  summary.Detected,
		"delivered": summary.Delivered,
		"failed":    summary.Failed,
		"duration":  summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Info("Run finished")

	if err != nil {
		return summary, fmt.Errorf("run %s interrupted: %w", summary.RunID, err)
	}
	return summary, nil
}

func (r *Runner) processAlert(ctx context.Context, creator models.Creator, alertType string) (bool, bool, error) {
	now := r.now()
	history, err := r.store.GetAlertHistory(ctx, creator.ID, now.AddDate(0, 0, -r.cfg.HistoryDays))
	if err != nil {
		return false, false, fmt.Errorf("failed to load alert history: %w", err)
	}
	state, err := r.store.GetDialogueState(ctx, creator.ID)
	if err != nil {
		return false, false, fmt.Errorf("failed to load dialogue state: %w", err)
	}

	start := time.Now()
	event, err := r.alerts.Evaluate(ctx, alertType, alerts.Request{
		CreatorID: creator.ID,
		Today:     now,
		History:   history,
		Dialogue:  state,
	})
	if err != nil {
		r.metrics.ObserveEvaluation(KindAlert, alertType, metrics.OutcomeError, time.Since(start))
		return false, false, err
	}
	if event == nil {
		r.metrics.ObserveEvaluation(KindAlert, alertType, metrics.OutcomeNone, time.Since(start))
		return false, false, nil
	}
	r.metrics.ObserveEvaluation(KindAlert, alertType, metrics.OutcomeDetected, time.Since(start))

	sent, err := r.deliver(ctx, KindAlert, creator, *event, now, r.store.AppendAlertHistory)
	return true, sent, err
}

func (r *Runner) processInsight(ctx context.Context, creator models.Creator) (bool, bool, error) {
	now := r.now()
	history, err := r.store.GetInsightHistory(ctx, creator.ID, now.AddDate(0, 0, -r.cfg.HistoryDays))
	if err != nil {
		return false, false, fmt.Errorf("failed to load insight history: %w", err)
	}

	start := time.Now()
	event := r.insights.Generate(ctx, creator, history, now)
	if event == nil {
		r.metrics.ObserveEvaluation(KindInsight, "", metrics.OutcomeNone, time.Since(start))
		return false, false, nil
	}
	r.metrics.ObserveEvaluation(KindInsight, event.Type, metrics.OutcomeDetected, time.Since(start))

	sent, err := r.deliver(ctx, KindInsight, creator, *event, now, r.store.AppendInsightHistory)
	return true, sent, err
}

type appendFunc func(ctx context.Context, creatorID string, entry models.HistoryEntry) error

// deliver notifies the creator and records the event only once delivery succeeded
func (r *Runner) deliver(ctx context.Context, kind string, creator models.Creator, event models.DetectedEvent, now time.Time, record appendFunc) (bool, error) {
	err := r.notifier.Notify(ctx, kind, creator, event)
	r.metrics.ObserveDelivery(kind, err)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"creator_id": creator.ID,
			"kind":       kind,
			"type":       event.Type,
		}).WithError(err).Warn("Delivery failed, event not recorded")
		return false, nil
	}

	entry := models.HistoryEntry{
		Type:      event.Type,
		Timestamp: now,
		Message:   event.Message,
		Details:   event.Details,
	}
	if err := record(ctx, creator.ID, entry); err != nil {
		return true, fmt.Errorf("failed to record %s history: %w", kind, err)
	}
	return true, nil
}
