package alerts

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/models"
)

// UntappedTopicDetector flags an old high performer whose topic has not
// been revisited recently and still beats what recent posts achieve
type UntappedTopicDetector struct {
	guard
	cfg UntappedTopicConfig
}

// Type returns the alert type this detector produces
func (d *UntappedTopicDetector) Type() string { return TypeUntappedTopic }

type scoredPost struct {
	post  models.PostRecord
	value float64
}

// Detect looks for an old top performer whose topic was not revisited
func (d *UntappedTopicDetector) Detect(ctx context.Context, req Request) (*models.DetectedEvent, error) {
	if d.suppressed(TypeUntappedTopic, req) {
		return nil, nil
	}

	posts, err := d.repo.GetRecentPosts(ctx, req.CreatorID, d.cfg.LookbackDays, models.PostFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent posts: %w", err)
	}
	sortNewestFirst(posts)

	var recent, older []models.PostRecord
	for _, p := range posts {
		if p.AgeInDays(req.Today) <= d.cfg.RecentDays {
			recent = append(recent, p)
		} else {
			older = append(older, p)
		}
	}
	if len(recent) < d.cfg.MinRecentPosts || len(older) < d.cfg.MinOlderPosts {
		d.insufficient(TypeUntappedTopic, req, "recent or older pool too small", logrus.Fields{
			"recent":          len(recent),
			"older":           len(older),
			"required_recent": d.cfg.MinRecentPosts,
			"required_older":  d.cfg.MinOlderPosts,
		})
		return nil, nil
	}

	ranked := make([]scoredPost, 0, len(older))
	for _, p := range older {
		if v, ok := p.Stats.Value(d.cfg.Metric); ok {
			ranked = append(ranked, scoredPost{post: p, value: v})
		}
	}
	if len(ranked) == 0 {
		d.insufficient(TypeUntappedTopic, req, "older posts lack the performance metric", nil)
		return nil, nil
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].value > ranked[j].value })

	top := int(math.Ceil(float64(len(ranked)) * d.cfg.TopFraction))
	if top < 1 {
		top = 1
	}
	if top > len(ranked) {
		top = len(ranked)
	}

	recentTopics := make(map[topicKey]bool, len(recent))
	var recentValues []float64
	recentByFormat := make(map[string][]float64)
	for _, p := range recent {
		recentTopics[topicOf(p)] = true
		if v, ok := p.Stats.Value(d.cfg.Metric); ok {
			recentValues = append(recentValues, v)
			f := normalizeLabel(p.Format)
			recentByFormat[f] = append(recentByFormat[f], v)
		}
	}
	recentAverage := mean(recentValues)

	for _, candidate := range ranked[:top] {
		key := topicOf(candidate.post)
		if key.empty() || recentTopics[key] {
			continue
		}

		reference := recentAverage
		referenceKind := "all_recent"
		if same := recentByFormat[key.format]; key.format != "" && len(same) >= d.cfg.MinSameFormatRecent {
			reference = mean(same)
			referenceKind = "same_format_recent"
		}

		if candidate.value > 0 && candidate.value > reference*d.cfg.Multiplier {
			return untappedTopicEvent(candidate, reference, referenceKind, d.cfg.Metric, req), nil
		}
	}
	return nil, nil
}

func untappedTopicEvent(c scoredPost, reference float64, referenceKind string, metric models.Metric, req Request) *models.DetectedEvent {
	p := c.post
	topic := describeTopic(p)
	details := map[string]any{
		"post_id":         p.ID,
		"published_at":    p.CreatedAt,
		"format":          p.Format,
		"proposal":        p.Proposal,
		"context":         p.Context,
		"post_value":      c.value,
		"reference_value": round2(reference),
		"reference_kind":  referenceKind,
		"metric":          string(metric),
		"age_days":        p.AgeInDays(req.Today),
	}
	var message string
	if reference > 0 {
		details["superiority_ratio"] = round2(c.value / reference)
		message = fmt.Sprintf(
			"Your %s post from %s did %.1fx better than your recent content and you haven't revisited that topic since. A fresh take could work again.",
			topic, formatDate(p.CreatedAt), c.value/reference,
		)
	} else {
		message = fmt.Sprintf(
			"Your %s post from %s was one of your best and you haven't revisited that topic since. A fresh take could work again.",
			topic, formatDate(p.CreatedAt),
		)
	}
	return &models.DetectedEvent{Type: TypeUntappedTopic, Message: message, Details: details}
}

func describeTopic(p models.PostRecord) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Proposal, p.Context, p.Format} {
		if s = normalizeLabel(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return string(p.Type)
	}
	desc := parts[0]
	for _, s := range parts[1:] {
		desc += " / " + s
	}
	return "\"" + desc + "\""
}
