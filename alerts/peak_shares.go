package alerts

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/models"
)

// PeakSharesDetector flags a recent post whose day 2 (or day 3) shares
// far exceed the creator's usual early-life share rate
type PeakSharesDetector struct {
	guard
	cfg PeakSharesConfig
}

// Type returns the alert type this detector produces
func (d *PeakSharesDetector) Type() string { return TypePeakShares }

// Detect looks for share spikes on day 2 or 3 of a recent post
func (d *PeakSharesDetector) Detect(ctx context.Context, req Request) (*models.DetectedEvent, error) {
	if d.suppressed(TypePeakShares, req) {
		return nil, nil
	}

	posts, err := d.repo.GetRecentPosts(ctx, req.CreatorID, d.cfg.ComparisonLookbackDays, models.PostFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent posts: %w", err)
	}
	sortNewestFirst(posts)

	cache := make(map[string][]models.DailySnapshot)
	snapshotsFor := func(postID string) ([]models.DailySnapshot, error) {
		if s, ok := cache[postID]; ok {
			return s, nil
		}
		s, err := d.repo.GetDailySnapshots(ctx, postID, req.CreatorID)
		if err != nil {
			return nil, err
		}
		cache[postID] = s
		return s, nil
	}

	candidates := 0
	for i, post := range posts {
		age := post.AgeInDays(req.Today)
		if age < d.cfg.MinAgeDays || age > d.cfg.MaxAgeDays {
			continue
		}
		candidates++

		snapshots, err := snapshotsFor(post.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.log.WithError(err).WithFields(logrus.Fields{
				"creator_id": req.CreatorID,
				"post_id":    post.ID,
			}).Error("Failed to load daily snapshots")
			continue
		}

		peakDay, peak, ok := peakShares(snapshots)
		if !ok {
			continue
		}
		if peak < d.cfg.AbsoluteMinimum {
			continue
		}

		// older posts of the same type; posts is newest first so everything after i is older
		baseline, poolSize := d.baseline(ctx, req, post, posts[i+1:], snapshotsFor)
		if poolSize < d.cfg.MinComparisonPosts {
			d.insufficient(TypePeakShares, req, "comparison pool too small", logrus.Fields{
				"post_id":   post.ID,
				"pool_size": poolSize,
				"required":  d.cfg.MinComparisonPosts,
			})
			continue
		}

		if peak > baseline*d.cfg.Multiplier {
			return peakSharesEvent(post, peakDay, peak, baseline, poolSize), nil
		}
	}

	if candidates == 0 {
		d.insufficient(TypePeakShares, req, "no posts inside the candidate age window", nil)
	}
	return nil, nil
}

// baseline averages the day 1-3 daily shares of up to ComparisonPoolSize
// older posts with the candidate's content type. Only posts that have at
// least one early snapshot count towards the pool size.
func (d *PeakSharesDetector) baseline(
	ctx context.Context,
	req Request,
	candidate models.PostRecord,
	older []models.PostRecord,
	snapshotsFor func(string) ([]models.DailySnapshot, error),
) (float64, int) {
	var values []float64
	pool := 0
	for _, p := range older {
		if pool >= d.cfg.ComparisonPoolSize || ctx.Err() != nil {
			break
		}
		if p.Type != candidate.Type || !p.CreatedAt.Before(candidate.CreatedAt) {
			continue
		}
		snapshots, err := snapshotsFor(p.ID)
		if err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"creator_id": req.CreatorID,
				"post_id":    p.ID,
			}).Error("Failed to load comparison snapshots")
			continue
		}
		contributed := false
		for _, s := range snapshots {
			if s.DayNumber < 1 || s.DayNumber > 3 || s.DailyShares == nil {
				continue
			}
			values = append(values, float64(*s.DailyShares))
			contributed = true
		}
		if contributed {
			pool++
		}
	}
	return mean(values), pool
}

// peakShares returns the day 2 daily shares when positive, otherwise day 3
func peakShares(snapshots []models.DailySnapshot) (int, float64, bool) {
	var day2, day3 *int64
	for _, s := range snapshots {
		switch s.DayNumber {
		case 2:
			day2 = s.DailyShares
		case 3:
			day3 = s.DailyShares
		}
	}
	if day2 != nil && *day2 > 0 {
		return 2, float64(*day2), true
	}
	if day3 != nil && *day3 > 0 {
		return 3, float64(*day3), true
	}
	return 0, 0, false
}

func peakSharesEvent(post models.PostRecord, day int, peak, baseline float64, poolSize int) *models.DetectedEvent {
	details := map[string]any{
		"post_id":          post.ID,
		"post_type":        string(post.Type),
		"post_description": post.Description,
		"published_at":     post.CreatedAt,
		"peak_day":         day,
		"peak_shares":      peak,
		"baseline_shares":  round2(baseline),
		"comparison_posts": poolSize,
	}
	var message string
	if baseline > 0 {
		ratio := peak / baseline
		details["ratio"] = round2(ratio)
		message = fmt.Sprintf(
			"Your %s from %s got %.0f shares on day %d, %.1fx your usual early share rate. Something in it made people pass it on; worth revisiting.",
			post.Type, formatDate(post.CreatedAt), peak, day, ratio,
		)
	} else {
		message = fmt.Sprintf(
			"Your %s from %s got %.0f shares on day %d while your recent posts were barely shared. Worth revisiting what made it spread.",
			post.Type, formatDate(post.CreatedAt), peak, day,
		)
	}
	return &models.DetectedEvent{Type: TypePeakShares, Message: message, Details: details}
}
