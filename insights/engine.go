package insights

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/cooldown"
	"github.com/brettboylen/creator-pulse/models"
)

// MetricsReader is the read side of the metrics repository used for insights
type MetricsReader interface {
	GetRecentPosts(ctx context.Context, creatorID string, windowDays int, filter models.PostFilter) ([]models.PostRecord, error)
	GetAccountInsights(ctx context.Context, creatorID string, windowDays int) ([]models.AccountInsight, error)
	GetLatestAccountInsight(ctx context.Context, creatorID string) (*models.AccountInsight, error)
}

// Engine picks the single best fallback insight for a creator
type Engine struct {
	repo       MetricsReader
	cfg        Config
	generators []Generator
	log        *logrus.Logger
}

// NewEngine creates an insight engine with the built-in generators
func NewEngine(repo MetricsReader, cfg Config, log *logrus.Logger) *Engine {
	cfg = cfg.WithDefaults()
	return &Engine{
		repo:       repo,
		cfg:        cfg,
		generators: Generators(cfg),
		log:        log,
	}
}

// Types returns the insight types in priority order
func (e *Engine) Types() []string {
	types := make([]string, 0, len(e.generators))
	for _, g := range e.generators {
		types = append(types, g.Type)
	}
	return types
}

// Generate loads the creator's recent data and returns the first insight not
// on cooldown. Read failures degrade to an empty report, so an insight is
// always returned.
func (e *Engine) Generate(ctx context.Context, creator models.Creator, history []models.HistoryEntry, now time.Time) *models.DetectedEvent {
	logEntry := e.log.WithField("creator_id", creator.ID)

	posts, err := e.repo.GetRecentPosts(ctx, creator.ID, e.cfg.LookbackDays, models.PostFilter{})
	if err != nil {
		logEntry.WithError(err).Error("Failed to load posts for insight, using empty report")
		posts = nil
	}

	series, err := e.repo.GetAccountInsights(ctx, creator.ID, e.cfg.LookbackDays)
	if err != nil {
		logEntry.WithError(err).Warn("Failed to load account insights")
		series = nil
	}
	if len(series) == 0 {
		latest, err := e.repo.GetLatestAccountInsight(ctx, creator.ID)
		if err != nil {
			logEntry.WithError(err).Warn("Failed to load latest account insight")
		} else if latest != nil {
			series = []models.AccountInsight{*latest}
		}
	}

	report := BuildReport(posts, now, e.cfg.LookbackDays)
	return e.Pick(creator, report, series, history)
}

// Pick runs the generators in priority order against an already built report.
// The terminal generator ignores cooldowns so the result is never nil.
func (e *Engine) Pick(creator models.Creator, report *Report, series []models.AccountInsight, history []models.HistoryEntry) *models.DetectedEvent {
	reminders := 0
	for _, h := range history {
		if h.Type == TypeFeatureReminder {
			reminders++
		}
	}
	scoped := *report
	scoped.PreviousReminders = reminders
	report = &scoped

	last := len(e.generators) - 1
	for i, g := range e.generators {
		if i != last && cooldown.IsOnCooldown(g.Type, history, e.cfg.Cooldowns, report.GeneratedAt) {
			e.log.WithFields(logrus.Fields{
				"creator_id":   creator.ID,
				"insight_type": g.Type,
			}).Debug("Insight type on cooldown, skipping")
			continue
		}
		if event := g.Generate(creator, report, series, e.cfg.LookbackDays); event != nil {
			e.log.WithFields(logrus.Fields{
				"creator_id":   creator.ID,
				"insight_type": event.Type,
				"posts":        report.PostCount,
			}).Info("Insight generated")
			return event
		}
	}
	return nil
}
