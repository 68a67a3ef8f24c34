package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/cooldown"
	"github.com/brettboylen/creator-pulse/models"
)

// ErrUnknownAlertType is returned when no detector is registered for a type
var ErrUnknownAlertType = errors.New("unknown alert type")

// MetricsReader is the read side of the metrics repository used by the detectors.
// Post lists are returned newest first.
type MetricsReader interface {
	GetRecentPosts(ctx context.Context, creatorID string, windowDays int, filter models.PostFilter) ([]models.PostRecord, error)
	GetDailySnapshots(ctx context.Context, postID, creatorID string) ([]models.DailySnapshot, error)
	GetRecentPostsWithAggregates(ctx context.Context, creatorID string, windowDays int) ([]models.PostRecord, error)
}

// Request carries everything a detector needs besides repository data
type Request struct {
	CreatorID string
	Today     time.Time
	History   []models.HistoryEntry
	Dialogue  models.DialogueState
}

// Detector tests a creator for one anomaly pattern
type Detector interface {
	Type() string
	Detect(ctx context.Context, req Request) (*models.DetectedEvent, error)
}

// guard is embedded by every detector so each can re-check suppression
// before touching the repository
type guard struct {
	repo      MetricsReader
	cooldowns cooldown.Config
	log       *logrus.Logger
}

func (g guard) suppressed(alertType string, req Request) bool {
	if req.Dialogue.LastAlertType == alertType {
		g.log.WithFields(logrus.Fields{
			"creator_id": req.CreatorID,
			"alert_type": alertType,
		}).Debug("Alert type was the last alert shown, skipping")
		return true
	}
	if cooldown.IsOnCooldown(alertType, req.History, g.cooldowns, req.Today) {
		g.log.WithFields(logrus.Fields{
			"creator_id": req.CreatorID,
			"alert_type": alertType,
			"remaining":  cooldown.Remaining(alertType, req.History, g.cooldowns, req.Today).String(),
		}).Debug("Alert type on cooldown, skipping")
		return true
	}
	return false
}

func (g guard) insufficient(alertType string, req Request, reason string, fields logrus.Fields) {
	entry := g.log.WithFields(logrus.Fields{
		"creator_id": req.CreatorID,
		"alert_type": alertType,
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Debug("Insufficient data: " + reason)
}

// Engine runs detectors for a creator and applies suppression rules
type Engine struct {
	detectors map[string]Detector
	order     []string
	cooldowns cooldown.Config
	log       *logrus.Logger
}

// NewEngine creates an engine with all built-in detectors registered
func NewEngine(repo MetricsReader, cfg Config, log *logrus.Logger) *Engine {
	cfg = cfg.WithDefaults()
	g := guard{repo: repo, cooldowns: cfg.Cooldowns, log: log}

	e := &Engine{
		detectors: make(map[string]Detector),
		cooldowns: cfg.Cooldowns,
		log:       log,
	}
	e.Register(&PeakSharesDetector{guard: g, cfg: cfg.PeakShares})
	e.Register(&WatchTimeDropDetector{guard: g, cfg: cfg.WatchTime})
	e.Register(&ForgottenFormatDetector{guard: g, cfg: cfg.ForgottenFormat})
	e.Register(&UntappedTopicDetector{guard: g, cfg: cfg.UntappedTopic})
	e.Register(&EngagementPeakDetector{guard: g, cfg: cfg.EngagementPeak})
	return e
}

// Register adds or replaces a detector. New types are appended to the evaluation order.
func (e *Engine) Register(d Detector) {
	if _, exists := e.detectors[d.Type()]; !exists {
		e.order = append(e.order, d.Type())
	}
	e.detectors[d.Type()] = d
}

// Types returns the registered alert types in evaluation order
func (e *Engine) Types() []string {
	types := make([]string, len(e.order))
	copy(types, e.order)
	return types
}

// Evaluate runs the detector for alertType. A nil event means there is
// nothing to say; detector failures are logged and reported as nil.
func (e *Engine) Evaluate(ctx context.Context, alertType string, req Request) (*models.DetectedEvent, error) {
	detector, ok := e.detectors[alertType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlertType, alertType)
	}

	logEntry := e.log.WithFields(logrus.Fields{
		"creator_id": req.CreatorID,
		"alert_type": alertType,
	})

	if req.Dialogue.LastAlertType == alertType {
		logEntry.Debug("Alert type matches last alert shown, skipping detector")
		return nil, nil
	}
	if cooldown.IsOnCooldown(alertType, req.History, e.cooldowns, req.Today) {
		logEntry.Debug("Alert type on cooldown, skipping detector")
		return nil, nil
	}

	event, err := detector.Detect(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logEntry.WithError(err).Debug("Alert evaluation abandoned")
			return nil, nil
		}
		logEntry.WithError(err).Error("Alert detector failed")
		return nil, nil
	}

	if event != nil {
		logEntry.WithField("message", event.Message).Info("Alert detected")
	}
	return event, nil
}

// EvaluateAny runs every registered detector in order and returns the first detection
func (e *Engine) EvaluateAny(ctx context.Context, req Request) *models.DetectedEvent {
	for _, alertType := range e.order {
		if ctx.Err() != nil {
			return nil
		}
		event, _ := e.Evaluate(ctx, alertType, req)
		if event != nil {
			return event
		}
	}
	return nil
}
