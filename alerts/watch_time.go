package alerts

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/models"
)

// WatchTimeDropDetector flags a drop in average watch time of the latest
// reels compared with older reels
type WatchTimeDropDetector struct {
	guard
	cfg WatchTimeConfig
}

// Type returns the alert type this detector produces
func (d *WatchTimeDropDetector) Type() string { return TypeWatchTimeDrop }

// Detect looks for a drop in average watch time of the latest reels
func (d *WatchTimeDropDetector) Detect(ctx context.Context, req Request) (*models.DetectedEvent, error) {
	if d.suppressed(TypeWatchTimeDrop, req) {
		return nil, nil
	}

	reels, err := d.repo.GetRecentPosts(ctx, req.CreatorID, d.cfg.LookbackDays, models.PostFilter{
		Types: []models.ContentType{models.ContentReel},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent reels: %w", err)
	}
	if len(reels) < d.cfg.MinReels {
		d.insufficient(TypeWatchTimeDrop, req, "not enough reels", logrus.Fields{
			"reels":    len(reels),
			"required": d.cfg.MinReels,
		})
		return nil, nil
	}
	sortNewestFirst(reels)

	window := d.cfg.CurrentWindow
	if window > len(reels) {
		window = len(reels)
	}
	currentValues := d.watchTimes(ctx, req, reels[:window])
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(currentValues) == 0 {
		d.insufficient(TypeWatchTimeDrop, req, "latest reels have no watch time", nil)
		return nil, nil
	}
	current := mean(currentValues)

	older := reels[window:]
	if len(older) > d.cfg.HistoricalPoolSize {
		older = older[:d.cfg.HistoricalPoolSize]
	}
	historicalValues := d.watchTimes(ctx, req, older)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	historical := mean(historicalValues)
	synthesized := false
	if len(historicalValues) == 0 {
		synthesized = true
		if current > 0 {
			historical = current * d.cfg.SynthesizedFactor
		} else {
			historical = d.cfg.SynthesizedFloorSeconds
		}
	}

	if historical <= d.cfg.MinHistoricalSeconds {
		d.insufficient(TypeWatchTimeDrop, req, "historical watch time too low to compare", logrus.Fields{
			"historical": historical,
		})
		return nil, nil
	}
	if current >= historical*(1-d.cfg.DropThreshold) {
		return nil, nil
	}

	dropPercent := (1 - current/historical) * 100
	return &models.DetectedEvent{
		Type: TypeWatchTimeDrop,
		Message: fmt.Sprintf(
			"Your latest reels are holding viewers for %.1fs on average, down %.0f%% from %.1fs. Try a stronger hook in the first seconds.",
			current, dropPercent, historical,
		),
		Details: map[string]any{
			"current_avg_watch_time":    round2(current),
			"historical_avg_watch_time": round2(historical),
			"drop_percent":              round2(dropPercent),
			"current_reels":             len(currentValues),
			"historical_reels":          len(historicalValues),
			"historical_synthesized":    synthesized,
		},
	}, nil
}

// watchTimes returns, per reel, the watch time of its latest snapshot that
// carries one. Reels without any are skipped.
func (d *WatchTimeDropDetector) watchTimes(ctx context.Context, req Request, reels []models.PostRecord) []float64 {
	values := make([]float64, 0, len(reels))
	for _, reel := range reels {
		if ctx.Err() != nil {
			return values
		}
		snapshots, err := d.repo.GetDailySnapshots(ctx, reel.ID, req.CreatorID)
		if err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"creator_id": req.CreatorID,
				"post_id":    reel.ID,
			}).Error("Failed to load reel snapshots")
			continue
		}
		if v, ok := latestWatchTime(snapshots); ok {
			values = append(values, v)
		}
	}
	return values
}

func latestWatchTime(snapshots []models.DailySnapshot) (float64, bool) {
	bestDay := -1
	var value float64
	for _, s := range snapshots {
		if s.AvgWatchTime == nil {
			continue
		}
		if s.DayNumber > bestDay {
			bestDay = s.DayNumber
			value = *s.AvgWatchTime
		}
	}
	return value, bestDay >= 0
}
