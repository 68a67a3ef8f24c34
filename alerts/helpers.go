package alerts

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/brettboylen/creator-pulse/models"
)

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// sortNewestFirst orders posts by publication time, newest first; ties keep
// repository order
func sortNewestFirst(posts []models.PostRecord) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

func daysSince(t, now time.Time) float64 {
	return now.Sub(t).Hours() / 24
}

// normalizeLabel lowercases and collapses whitespace
func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type topicKey struct {
	format   string
	proposal string
	context  string
}

func topicOf(p models.PostRecord) topicKey {
	return topicKey{
		format:   normalizeLabel(p.Format),
		proposal: normalizeLabel(p.Proposal),
		context:  normalizeLabel(p.Context),
	}
}

func (k topicKey) empty() bool {
	return k.format == "" && k.proposal == "" && k.context == ""
}

func formatDate(t time.Time) string {
	return t.Format("Jan 2")
}
