package insights

import (
	"sort"
	"strings"
	"time"

	"github.com/brettboylen/creator-pulse/models"
)

type average struct {
	sum   float64
	count int
}

func (a *average) add(v float64) {
	a.sum += v
	a.count++
}

func (a average) value() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// GroupStats aggregates posts sharing a weekday, format, content family or proposal
type GroupStats struct {
	Name     string
	Posts    int
	LastUsed time.Time

	interactions average
	comments     average
	likes        average
}

func (g *GroupStats) add(p models.PostRecord) {
	g.Posts++
	if p.CreatedAt.After(g.LastUsed) {
		g.LastUsed = p.CreatedAt
	}
	if v, ok := p.Stats.Value(models.MetricTotalInteractions); ok {
		g.interactions.add(v)
	}
	if v, ok := p.Stats.Value(models.MetricComments); ok {
		g.comments.add(v)
	}
	if v, ok := p.Stats.Value(models.MetricLikes); ok {
		g.likes.add(v)
	}
}

// Average returns the group mean of a ranking metric, and whether any post reported it
func (g *GroupStats) Average(m models.Metric) (float64, bool) {
	var a average
	switch m {
	case models.MetricTotalInteractions:
		a = g.interactions
	case models.MetricComments:
		a = g.comments
	case models.MetricLikes:
		a = g.likes
	default:
		return 0, false
	}
	return a.value(), a.count > 0
}

// AvgInteractions is Average(total_interactions) without the presence flag
func (g *GroupStats) AvgInteractions() float64 {
	v, _ := g.Average(models.MetricTotalInteractions)
	return v
}

// Report is the enriched per-creator summary the generators read from
type Report struct {
	GeneratedAt  time.Time
	LookbackDays int
	Posts        []models.PostRecord

	PostCount     int
	PostsLastWeek int

	AvgLikes        float64
	AvgComments     float64
	AvgReach        float64
	AvgInteractions float64
	PostsWithReach  int

	TopPost             *models.PostRecord
	TopPostInteractions float64
	TopReachPost        *models.PostRecord
	TopReach            float64

	Weekdays  map[time.Weekday]*GroupStats
	Reels     GroupStats
	Static    GroupStats
	Formats   map[string]*GroupStats
	Proposals map[string]*GroupStats

	// PreviousReminders counts feature reminders already shown, used to rotate them
	PreviousReminders int
}

// BuildReport summarizes the posts published within lookbackDays of now
func BuildReport(posts []models.PostRecord, now time.Time, lookbackDays int) *Report {
	r := &Report{
		GeneratedAt:  now,
		LookbackDays: lookbackDays,
		Weekdays:     make(map[time.Weekday]*GroupStats),
		Reels:        GroupStats{Name: "reels"},
		Static:       GroupStats{Name: "static posts"},
		Formats:      make(map[string]*GroupStats),
		Proposals:    make(map[string]*GroupStats),
	}

	cutoff := now.AddDate(0, 0, -lookbackDays)
	weekAgo := now.AddDate(0, 0, -7)
	var likes, comments, reach, interactions average

	for _, p := range posts {
		if p.CreatedAt.Before(cutoff) || p.CreatedAt.After(now) {
			continue
		}
		r.Posts = append(r.Posts, p)
	}
	sort.SliceStable(r.Posts, func(i, j int) bool {
		return r.Posts[i].CreatedAt.After(r.Posts[j].CreatedAt)
	})

	for i := range r.Posts {
		p := r.Posts[i]
		r.PostCount++
		if !p.CreatedAt.Before(weekAgo) {
			r.PostsLastWeek++
		}

		if v, ok := p.Stats.Value(models.MetricLikes); ok {
			likes.add(v)
		}
		if v, ok := p.Stats.Value(models.MetricComments); ok {
			comments.add(v)
		}
		if v, ok := p.Stats.Value(models.MetricReach); ok {
			reach.add(v)
			if r.TopReachPost == nil || v > r.TopReach {
				r.TopReachPost = &r.Posts[i]
				r.TopReach = v
			}
		}
		if v, ok := p.Stats.Value(models.MetricTotalInteractions); ok {
			interactions.add(v)
			if r.TopPost == nil || v > r.TopPostInteractions {
				r.TopPost = &r.Posts[i]
				r.TopPostInteractions = v
			}
		}

		day := p.CreatedAt.Weekday()
		if r.Weekdays[day] == nil {
			r.Weekdays[day] = &GroupStats{Name: day.String()}
		}
		r.Weekdays[day].add(p)

		switch {
		case p.Type == models.ContentReel:
			r.Reels.add(p)
		case p.Type.IsStatic():
			r.Static.add(p)
		}

		if key := normalizeLabel(p.Format); key != "" {
			groupFor(r.Formats, key, p.Format).add(p)
		}

		seen := make(map[string]bool)
		for _, label := range append([]string{p.Proposal}, p.Tags...) {
			key := normalizeLabel(label)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			groupFor(r.Proposals, key, label).add(p)
		}
	}

	r.AvgLikes = likes.value()
	r.AvgComments = comments.value()
	r.AvgReach = reach.value()
	r.AvgInteractions = interactions.value()
	r.PostsWithReach = reach.count
	return r
}

// groupFor returns the group for key, creating it with the given display name.
// Posts are visited newest first so the display name is the latest spelling.
func groupFor(groups map[string]*GroupStats, key, name string) *GroupStats {
	g, ok := groups[key]
	if !ok {
		g = &GroupStats{Name: strings.TrimSpace(name)}
		groups[key] = g
	}
	return g
}

// sortedGroups returns groups ordered by name for deterministic iteration
func sortedGroups(groups map[string]*GroupStats) []*GroupStats {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*GroupStats, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k])
	}
	return out
}

func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func daysSince(t, now time.Time) int {
	if now.Before(t) {
		return 0
	}
	return int(now.Sub(t).Hours() / 24)
}
