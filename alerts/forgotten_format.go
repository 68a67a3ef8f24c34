package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/models"
)

// ForgottenFormatDetector flags a format that used to outperform the
// creator's average but has not been used for a while
type ForgottenFormatDetector struct {
	guard
	cfg ForgottenFormatConfig
}

// Type returns the alert type this detector produces
func (d *ForgottenFormatDetector) Type() string { return TypeForgottenFormat }

type formatUsage struct {
	name     string
	values   []float64
	posts    int
	lastUsed time.Time
}

// Detect looks for the best performing format left unused
func (d *ForgottenFormatDetector) Detect(ctx context.Context, req Request) (*models.DetectedEvent, error) {
	if d.suppressed(TypeForgottenFormat, req) {
		return nil, nil
	}

	posts, err := d.repo.GetRecentPosts(ctx, req.CreatorID, d.cfg.LookbackDays, models.PostFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent posts: %w", err)
	}
	sortNewestFirst(posts)

	var overallValues []float64
	usage := make(map[string]*formatUsage)
	for _, p := range posts {
		value, hasValue := p.Stats.Value(d.cfg.Metric)
		if hasValue {
			overallValues = append(overallValues, value)
		}

		key := normalizeLabel(p.Format)
		if key == "" {
			continue
		}
		u, ok := usage[key]
		if !ok {
			// posts are newest first, so the first one seen carries the latest spelling and date
			u = &formatUsage{name: p.Format, lastUsed: p.CreatedAt}
			usage[key] = u
		}
		u.posts++
		if hasValue {
			u.values = append(u.values, value)
		}
	}

	if len(overallValues) == 0 {
		d.insufficient(TypeForgottenFormat, req, "no posts with the performance metric", logrus.Fields{
			"metric": d.cfg.Metric,
		})
		return nil, nil
	}
	overall := mean(overallValues)
	if overall <= 0 {
		d.insufficient(TypeForgottenFormat, req, "overall average is zero", nil)
		return nil, nil
	}

	var forgotten []*formatUsage
	for _, u := range usage {
		if u.posts < d.cfg.MinPostsPerFormat || len(u.values) == 0 {
			continue
		}
		if daysSince(u.lastUsed, req.Today) <= float64(d.cfg.UnusedDays) {
			continue
		}
		forgotten = append(forgotten, u)
	}
	if len(forgotten) == 0 {
		d.insufficient(TypeForgottenFormat, req, "no qualifying format left unused", nil)
		return nil, nil
	}

	sort.Slice(forgotten, func(i, j int) bool {
		ai, aj := mean(forgotten[i].values), mean(forgotten[j].values)
		if ai != aj {
			return ai > aj
		}
		return normalizeLabel(forgotten[i].name) < normalizeLabel(forgotten[j].name)
	})
	best := forgotten[0]
	bestAvg := mean(best.values)

	if bestAvg <= 0 || bestAvg <= overall*d.cfg.Multiplier {
		return nil, nil
	}

	superiority := (bestAvg/overall - 1) * 100
	unusedDays := int(daysSince(best.lastUsed, req.Today))
	return &models.DetectedEvent{
		Type: TypeForgottenFormat,
		Message: fmt.Sprintf(
			"You haven't posted a %s in %d days, yet it performs %.0f%% above your average. Time to bring it back?",
			best.name, unusedDays, superiority,
		),
		Details: map[string]any{
			"format":              best.name,
			"format_average":      round2(bestAvg),
			"overall_average":     round2(overall),
			"superiority_percent": round2(superiority),
			"days_unused":         unusedDays,
			"last_used_at":        best.lastUsed,
			"format_posts":        best.posts,
			"metric":              string(d.cfg.Metric),
		},
	}, nil
}
