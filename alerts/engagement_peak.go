package alerts

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/models"
)

// EngagementPeakDetector flags a fresh post drawing far more comments than
// usual, a conversation the creator should join while it is active
type EngagementPeakDetector struct {
	guard
	cfg EngagementPeakConfig
}

// Type returns the alert type this detector produces
func (d *EngagementPeakDetector) Type() string { return TypeEngagementPeak }

// Detect looks for a fresh post drawing far more comments than usual
func (d *EngagementPeakDetector) Detect(ctx context.Context, req Request) (*models.DetectedEvent, error) {
	if d.suppressed(TypeEngagementPeak, req) {
		return nil, nil
	}

	posts, err := d.repo.GetRecentPostsWithAggregates(ctx, req.CreatorID, d.cfg.HistoricalLookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load posts with aggregates: %w", err)
	}
	sortNewestFirst(posts)

	var candidates []models.PostRecord
	var historical []float64
	for _, p := range posts {
		age := p.AgeInDays(req.Today)
		switch {
		case age >= d.cfg.MinAgeDays && age <= d.cfg.MaxAgeDays:
			candidates = append(candidates, p)
		case age > d.cfg.MaxAgeDays:
			historical = append(historical, totalComments(p))
		}
	}

	if len(historical) < d.cfg.MinHistoricalPosts {
		d.insufficient(TypeEngagementPeak, req, "not enough historical posts", logrus.Fields{
			"historical": len(historical),
			"required":   d.cfg.MinHistoricalPosts,
		})
		return nil, nil
	}
	if len(candidates) == 0 {
		d.insufficient(TypeEngagementPeak, req, "no posts inside the candidate age window", nil)
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return totalComments(candidates[i]) > totalComments(candidates[j])
	})
	average := mean(historical)

	for _, p := range candidates {
		comments := totalComments(p)
		if comments >= d.cfg.AbsoluteMinimum && comments > average*d.cfg.Multiplier {
			details := map[string]any{
				"post_id":            p.ID,
				"post_type":          string(p.Type),
				"published_at":       p.CreatedAt,
				"comments":           comments,
				"historical_average": round2(average),
				"historical_posts":   len(historical),
				"post_description":   p.Description,
			}
			message := fmt.Sprintf(
				"Your %s from %s has %.0f comments, well above your usual %.0f. Reply while the conversation is hot, and consider a follow-up post.",
				p.Type, formatDate(p.CreatedAt), comments, average,
			)
			if average > 0 {
				details["ratio"] = round2(comments / average)
			}
			return &models.DetectedEvent{Type: TypeEngagementPeak, Message: message, Details: details}, nil
		}
	}
	return nil, nil
}

// totalComments is the larger of the post's own comment counter and the
// snapshot rollup. The rollup only counts when a snapshot reported comments.
func totalComments(p models.PostRecord) float64 {
	total := p.Stats.ValueOrZero(models.MetricComments)
	if agg := p.Aggregates; agg != nil && agg.CommentSnapshots > 0 {
		if rollup := float64(agg.TotalComments); rollup > total {
			total = rollup
		}
	}
	return total
}
