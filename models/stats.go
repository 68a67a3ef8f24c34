package models

import (
	"fmt"
	"strings"
)

// Metric names a numeric field of PostStats
type Metric string

const (
	MetricLikes             Metric = "likes"
	MetricComments          Metric = "comments"
	MetricShares            Metric = "shares"
	MetricSaved             Metric = "saved"
	MetricReach             Metric = "reach"
	MetricImpressions       Metric = "impressions"
	MetricVideoViews        Metric = "video_views"
	MetricTotalInteractions Metric = "total_interactions"
)

// ParseMetric validates a metric name
func ParseMetric(raw string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case MetricLikes, MetricComments, MetricShares, MetricSaved, MetricReach,
		MetricImpressions, MetricVideoViews, MetricTotalInteractions:
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q", raw)
}

// PostStats is the typed metric bag of a post. A nil field means the
// platform did not report that metric.
type PostStats struct {
	Likes             *int64 `json:"likes,omitempty"`
	Comments          *int64 `json:"comments,omitempty"`
	Shares            *int64 `json:"shares,omitempty"`
	Saved             *int64 `json:"saved,omitempty"`
	Reach             *int64 `json:"reach,omitempty"`
	Impressions       *int64 `json:"impressions,omitempty"`
	VideoViews        *int64 `json:"video_views,omitempty"`
	TotalInteractions *int64 `json:"total_interactions,omitempty"`
}

// Value returns the metric as a float and whether it was reported.
// Total interactions is derived from its parts when not reported directly.
func (s PostStats) Value(m Metric) (float64, bool) {
	var field *int64
	switch m {
	case MetricLikes:
		field = s.Likes
	case MetricComments:
		field = s.Comments
	case MetricShares:
		field = s.Shares
	case MetricSaved:
		field = s.Saved
	case MetricReach:
		field = s.Reach
	case MetricImpressions:
		field = s.Impressions
	case MetricVideoViews:
		field = s.VideoViews
	case MetricTotalInteractions:
		if s.TotalInteractions != nil {
			return float64(*s.TotalInteractions), true
		}
		return s.derivedInteractions()
	}
	if field == nil {
		return 0, false
	}
	return float64(*field), true
}

// ValueOrZero is Value without the presence flag
func (s PostStats) ValueOrZero(m Metric) float64 {
	v, _ := s.Value(m)
	return v
}

func (s PostStats) derivedInteractions() (float64, bool) {
	var total int64
	seen := false
	for _, f := range []*int64{s.Likes, s.Comments, s.Shares, s.Saved} {
		if f != nil {
			total += *f
			seen = true
		}
	}
	return float64(total), seen
}

// Validate rejects negative counters
func (s PostStats) Validate() error {
	fields := map[Metric]*int64{
		MetricLikes:             s.Likes,
		MetricComments:          s.Comments,
		MetricShares:            s.Shares,
		MetricSaved:             s.Saved,
		MetricReach:             s.Reach,
		MetricImpressions:       s.Impressions,
		MetricVideoViews:        s.VideoViews,
		MetricTotalInteractions: s.TotalInteractions,
	}
	for name, v := range fields {
		if v != nil && *v < 0 {
			return fmt.Errorf("metric %s is negative: %d", name, *v)
		}
	}
	return nil
}

// Sanitized returns a copy with negative counters dropped
func (s PostStats) Sanitized() PostStats {
	clean := func(v *int64) *int64 {
		if v == nil || *v < 0 {
			return nil
		}
		return v
	}
	return PostStats{
		Likes:             clean(s.Likes),
		Comments:          clean(s.Comments),
		Shares:            clean(s.Shares),
		Saved:             clean(s.Saved),
		Reach:             clean(s.Reach),
		Impressions:       clean(s.Impressions),
		VideoViews:        clean(s.VideoViews),
		TotalInteractions: clean(s.TotalInteractions),
	}
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 {
	return &v
}

// Float64 returns a pointer to v
func Float64(v float64) *float64 {
	return &v
}
