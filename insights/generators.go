package insights

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/brettboylen/creator-pulse/models"
)

// GenerateFunc builds a candidate insight or returns nil when its data is insufficient
type GenerateFunc func(creator models.Creator, report *Report, accountInsights []models.AccountInsight, lookbackDays int) *models.DetectedEvent

// Generator pairs an insight type with the function producing it
type Generator struct {
	Type     string
	Generate GenerateFunc
}

var featureReminders = []string{
	"Tip: ask for an alert on any of your recent posts to see how it compares with your history.",
	"Tip: tag your posts with a proposal and context so we can spot which topics your audience loves.",
	"Tip: log your daily reel watch time so we can warn you early when retention dips.",
	"Tip: keep posting consistently and we will surface your best day to publish.",
}

// Generators returns the fallback generators in fixed priority order.
// The last one always produces an insight.
func Generators(cfg Config) []Generator {
	g := generators{cfg: cfg}
	return []Generator{
		{TypeFollowerGrowth, g.followerGrowth},
		{TypeTopPost, g.topPost},
		{TypePostingConsistency, g.postingConsistency},
		{TypeBestDay, g.bestDay},
		{TypeReachHighlight, g.reachHighlight},
		{TypeContentType, g.contentType},
		{TypeFormatVariation, g.formatVariation},
		{TypeProposalSuccess, g.proposalSuccess},
		{TypeAverageLikes, g.averageLikes},
		{TypeAverageReach, g.averageReach},
		{TypeMostUsedFormat, g.mostUsedFormat},
		{TypeFollowerCount, g.followerCount},
		{TypeTotalPosts, g.totalPosts},
		{TypeFeatureReminder, g.featureReminder},
	}
}

type generators struct {
	cfg Config
}

func (g generators) followerGrowth(_ models.Creator, report *Report, series []models.AccountInsight, lookbackDays int) *models.DetectedEvent {
	cutoff := report.GeneratedAt.AddDate(0, 0, -lookbackDays)
	var points []models.AccountInsight
	for _, s := range series {
		if s.RecordedAt.Before(cutoff) || s.RecordedAt.After(report.GeneratedAt) {
			continue
		}
		points = append(points, s)
	}
	if len(points) < 2 {
		return nil
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].RecordedAt.Before(points[j].RecordedAt) })

	first, last := points[0], points[len(points)-1]
	growth := last.FollowersCount - first.FollowersCount
	if growth < g.cfg.MinFollowerGrowth {
		return nil
	}
	details := map[string]any{
		"follower_growth": growth,
		"start_followers": first.FollowersCount,
		"end_followers":   last.FollowersCount,
		"period_days":     daysSince(first.RecordedAt, last.RecordedAt),
	}
	msg := fmt.Sprintf("You gained %d followers over the last %d days.", growth, lookbackDays)
	if first.FollowersCount > 0 {
		pct := round2(float64(growth) / float64(first.FollowersCount) * 100)
		details["growth_percent"] = pct
		msg = fmt.Sprintf("You gained %d followers over the last %d days (+%.1f%%).", growth, lookbackDays, pct)
	}
	return &models.DetectedEvent{Type: TypeFollowerGrowth, Message: msg, Details: details}
}

func (g generators) topPost(_ models.Creator, report *Report, _ []models.AccountInsight, _ int) *models.DetectedEvent {
	if report.PostCount < g.cfg.TopPostMinPosts || report.TopPost == nil {
		return nil
	}
	if report.TopPostInteractions <= 0 || report.TopPostInteractions < report.AvgInteractions*g.cfg.TopPostMultiplier {
		return nil
	}
	p := report.TopPost
	return &models.DetectedEvent{
		Type: TypeTopPost,
		Message: fmt.Sprintf("Your %s from %s drew %.0f interactions, %.1fx your average.",
			describePost(*p), p.CreatedAt.Format("Jan 2"), report.TopPostInteractions, ratio(report.TopPostInteractions, report.AvgInteractions)),
		Details: map[string]any{
			"post_id":             p.ID,
			"published_at":        p.CreatedAt,
			"interactions":        report.TopPostInteractions,
			"average_interaction": round2(report.AvgInteractions),
			"ratio":               ratio(report.TopPostInteractions, report.AvgInteractions),
		},
	}
}

func (g generators) postingConsistency(_ models.Creator, report *Report, _ []models.AccountInsight, _ int) *models.DetectedEvent {
	if report.PostsLastWeek < g.cfg.ConsistencyMinPosts {
		return nil
	}
	return &models.DetectedEvent{
		Type:    TypePostingConsistency,
		Message: fmt.Sprintf("You published %d posts in the last 7 days. Consistency like that builds momentum.", report.PostsLastWeek),
		Details: map[string]any{"posts_last_week": report.PostsLastWeek},
	}
}

var bestDayMetrics = []models.Metric{
	models.MetricTotalInteractions,
	models.MetricComments,
	models.MetricLikes,
}

func (g generators) bestDay(_ models.Creator, report *Report, _ []models.AccountInsight, _ int) *models.DetectedEvent {
	for _, metric := range bestDayMetrics {
		var best *GroupStats
		var bestDay time.Weekday
		var bestAvg float64
		eligible := 0
		for day := time.Sunday; day <= time.Saturday; day++ {
			slot := report.Weekdays[day]
			if slot == nil || slot.Posts < g.cfg.BestDayMinPosts {
				continue
			}
			avg, ok := slot.Average(metric)
			if !ok {
				continue
			}
			eligible++
			if best == nil || avg > bestAvg {
				best, bestDay, bestAvg = slot, day, avg
			}
		}
		if eligible < g.cfg.BestDayMinSlots || best == nil || bestAvg <= 0 {
			continue
		}
		return &models.DetectedEvent{
			Type:    TypeBestDay,
			Message: fmt.Sprintf("%ss are your strongest day, averaging %.0f %s per post.", bestDay, bestAvg, metricNoun(metric)),
			Details: map[string]any{
				"weekday": bestDay.String(),
				"metric":  string(metric),
				"average": round2(bestAvg),
				"posts":   best.Posts,
				"slots":   eligible,
			},
		}
	}
	return nil
}

func (g generators) reachHighlight(_ models.Creator, report *Report, _ []models.AccountInsight, _ int) *models.DetectedEvent {
	if report.PostsWithReach < g.cfg.ReachMinPosts || report.TopReachPost == nil {
		return nil
	}
	if report.TopReach <= 0 || report.TopReach < report.AvgReach*g.cfg.ReachMultiplier {
		return nil
	}
	p := report.TopReachPost
	return &models.DetectedEvent{
		Type: TypeReachHighlight,
		Message: fmt.Sprintf("Your %s from %s reached %.0f accounts, %.1fx your usual reach.",
			describePost(*p), p.CreatedAt.Format("Jan 2"), report.TopReach, ratio(report.TopReach, report.AvgReach)),
		Details: map[string]any{
			"post_id":       p.ID,
			"reach":         report.TopReach,
			"average_reach": round2(report.AvgReach),
			"ratio":         ratio(report.TopReach, report.AvgReach),
		},
	}
}

func (g generators) contentType(_ models.Creator, report *Report, _ []models.AccountInsight, _ int) *models.DetectedEvent {
	if report.Reels.Posts < g.cfg.ContentTypeMinPosts || report.Static.Posts < g.cfg.ContentTypeMinPosts {
		return nil
	}
	reels, static := report.Reels.AvgInteractions(), report.Static.AvgInteractions()
	if reels <= 0 || static <= 0 {
		return nil
	}

	winner, loser := &report.Reels, &report.Static
	winAvg, loseAvg := reels, static
	if static > reels {
		winner, loser = loser, winner
		winAvg, loseAvg = loseAvg, winAvg
	}
	if winAvg < loseAvg*g.cfg.ContentTypeMultiplier {
		return nil
	}
	return &models.DetectedEvent{
		Type: TypeContentType,
		Message: fmt.Sprintf("Your %s average %.0f interactions, %.0f%% more than your %s.",
			winner.Name, winAvg, (winAvg/loseAvg-1)*100, loser.Name),
		Details: map[string]any{
			"winner":         winner.Name,
			"winner_average": round2(winAvg),
			"winner_posts":   winner.Posts,
			"other":          loser.Name,
			"other_average":  round2(loseAvg),
			"other_posts":    loser.Posts,
		},
	}
}

func (g generators) formatVariation(_ models.Creator, report *Report, _ []models.AccountInsight, _ int) *models.DetectedEvent {
	var best *GroupStats
	for _, f := range sortedGroups(report.Formats) {
		if daysSince(f.LastUsed, report.GeneratedAt) < g.cfg.FormatVariationDays {
			continue
		}
		if best == nil || f.AvgInteractions() > best.AvgInteractions() {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	days := daysSince(best.LastUsed, report.GeneratedAt)
	return &models.DetectedEvent{
		Type:    TypeFormatVariation,
		Message: fmt.Sprintf("It has been %d days since your last %s. Mixing formats keeps your feed fresh.", days, best.Name),
		Details: map[string]any{
			"format":       best.Name,
			"days_unused":  days,
			"last_used_at": best.LastUsed,
			"format_posts": best.Posts,
		},
	}
}

func (g generators) proposalSuccess(_ models.Creator, report *Report, _ []models.AccountInsight, _ int) *models.DetectedEvent {
	if report.AvgInteractions <= 0 {
		return nil
	}
	var best *GroupStats
	for _, p := range sortedGroups(report.Proposals) {
		if p.Posts < g.cfg.ProposalMinPosts || daysSince(p.LastUsed, report.GeneratedAt) <= g.cfg.ProposalRecentDays {
			continue
		}
		if p.AvgInteractions() <= report.AvgInteractions*g.cfg.ProposalMultiplier {
			continue
		}
		if best == nil || p.AvgInteractions() > best.AvgInteractions() {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	avg := best.AvgInteractions()
	return &models.DetectedEvent{
		Type: TypeProposalSuccess,
		Message: fmt.Sprintf("Posts about %q average %.0f interactions, %.0f%% above your norm. Worth another one?",
			best.Name, avg, (avg/report.AvgInteractions-1)*100),
		Details: map[string]any{
			"proposal":        best.Name,
			"average":         round2(avg),
			"overall_average": round2(report.AvgInteractions),
			"posts":           best.Posts,
			"days_unused":     daysSince(best.LastUsed, report.GeneratedAt),
		},
	}
}

func (g generators) averageLikes(_ models.Creator, report *Report, _ []models.AccountInsight, lookbackDays int) *models.DetectedEvent {
	if report.AvgLikes <= 0 {
		return nil
	}
	return &models.DetectedEvent{
		Type:    TypeAverageLikes,
		Message: fmt.Sprintf("Your posts averaged %.0f likes over the last %d days.", report.AvgLikes, lookbackDays),
		Details: map[string]any{"average_likes": round2(report.AvgLikes), "posts": report.PostCount},
	}
}

func (g generators) averageReach(_ models.Creator, report *Report, _ []models.AccountInsight, lookbackDays int) *models.DetectedEvent {
	if report.AvgReach <= 0 {
		return nil
	}
	return &models.DetectedEvent{
		Type:    TypeAverageReach,
		Message: fmt.Sprintf("Each post reached %.0f accounts on average over the last %d days.", report.AvgReach, lookbackDays),
		Details: map[string]any{"average_reach": round2(report.AvgReach), "posts": report.PostsWithReach},
	}
}

func (g generators) mostUsedFormat(_ models.Creator, report *Report, _ []models.AccountInsight, _ int) *models.DetectedEvent {
	formats := sortedGroups(report.Formats)
	if len(formats) == 0 {
		return nil
	}
	sort.SliceStable(formats, func(i, j int) bool { return formats[i].Posts > formats[j].Posts })

	top := formats[0]
	if top.Posts < g.cfg.DominanceMinPosts {
		return nil
	}
	if len(formats) > 1 && float64(top.Posts) < float64(formats[1].Posts)*g.cfg.DominanceRatio {
		return nil
	}
	return &models.DetectedEvent{
		Type:    TypeMostUsedFormat,
		Message: fmt.Sprintf("%s is your go-to format: %d of your last %d posts.", top.Name, top.Posts, report.PostCount),
		Details: map[string]any{"format": top.Name, "format_posts": top.Posts, "total_posts": report.PostCount},
	}
}

func (g generators) followerCount(_ models.Creator, report *Report, series []models.AccountInsight, _ int) *models.DetectedEvent {
	var latest *models.AccountInsight
	for i := range series {
		if series[i].RecordedAt.After(report.GeneratedAt) {
			continue
		}
		if latest == nil || series[i].RecordedAt.After(latest.RecordedAt) {
			latest = &series[i]
		}
	}
	if latest == nil || latest.FollowersCount <= 0 {
		return nil
	}
	return &models.DetectedEvent{
		Type:    TypeFollowerCount,
		Message: fmt.Sprintf("You have %d followers. Keep showing up for them.", latest.FollowersCount),
		Details: map[string]any{"followers": latest.FollowersCount, "recorded_at": latest.RecordedAt},
	}
}

func (g generators) totalPosts(_ models.Creator, report *Report, _ []models.AccountInsight, lookbackDays int) *models.DetectedEvent {
	if report.PostCount == 0 {
		return nil
	}
	return &models.DetectedEvent{
		Type:    TypeTotalPosts,
		Message: fmt.Sprintf("You shared %d posts in the last %d days.", report.PostCount, lookbackDays),
		Details: map[string]any{"posts": report.PostCount},
	}
}

func (g generators) featureReminder(_ models.Creator, report *Report, _ []models.AccountInsight, _ int) *models.DetectedEvent {
	idx := report.PreviousReminders % len(featureReminders)
	return &models.DetectedEvent{
		Type:    TypeFeatureReminder,
		Message: featureReminders[idx],
		Details: map[string]any{"reminder_index": idx},
	}
}

func describePost(p models.PostRecord) string {
	switch {
	case p.Type == models.ContentReel:
		return "reel"
	case p.Format != "":
		return normalizeLabel(p.Format) + " post"
	default:
		return "post"
	}
}

func metricNoun(m models.Metric) string {
	switch m {
	case models.MetricComments:
		return "comments"
	case models.MetricLikes:
		return "likes"
	default:
		return "interactions"
	}
}

func ratio(v, base float64) float64 {
	if base <= 0 {
		return 0
	}
	return round2(v / base)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
