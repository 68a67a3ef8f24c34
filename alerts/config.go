package alerts

import (
	"github.com/brettboylen/creator-pulse/cooldown"
	"github.com/brettboylen/creator-pulse/models"
)

// Alert types produced by the detectors
const (
	TypePeakShares      = "peak_performance_shares"
	TypeWatchTimeDrop   = "reels_watch_time_drop"
	TypeForgottenFormat = "forgotten_format_promising"
	TypeUntappedTopic   = "untapped_potential_topic"
	TypeEngagementPeak  = "engagement_peak_not_capitalized"
)

// PeakSharesConfig tunes the share spike detector
type PeakSharesConfig struct {
	MinAgeDays             int
	MaxAgeDays             int
	ComparisonLookbackDays int
	ComparisonPoolSize     int
	MinComparisonPosts     int
	AbsoluteMinimum        float64
	Multiplier             float64
}

// WatchTimeConfig tunes the reels watch time drop detector
type WatchTimeConfig struct {
	LookbackDays            int
	MinReels                int
	CurrentWindow           int
	HistoricalPoolSize      int
	DropThreshold           float64 // fraction, 0.25 means a 25% drop
	MinHistoricalSeconds    float64
	SynthesizedFactor       float64
	SynthesizedFloorSeconds float64
}

// ForgottenFormatConfig tunes the forgotten promising format detector
type ForgottenFormatConfig struct {
	LookbackDays      int
	MinPostsPerFormat int
	UnusedDays        int
	Multiplier        float64
	Metric            models.Metric
}

// UntappedTopicConfig tunes the untapped potential topic detector
type UntappedTopicConfig struct {
	LookbackDays        int
	RecentDays          int
	MinRecentPosts      int
	MinOlderPosts       int
	TopFraction         float64
	MinSameFormatRecent int
	Multiplier          float64
	Metric              models.Metric
}

// EngagementPeakConfig tunes the comment peak detector
type EngagementPeakConfig struct {
	MinAgeDays             int
	MaxAgeDays             int
	HistoricalLookbackDays int
	MinHistoricalPosts     int
	AbsoluteMinimum        float64
	Multiplier             float64
}

// Config holds every detector threshold plus the alert cooldown windows
type Config struct {
	PeakShares      PeakSharesConfig
	WatchTime       WatchTimeConfig
	ForgottenFormat ForgottenFormatConfig
	UntappedTopic   UntappedTopicConfig
	EngagementPeak  EngagementPeakConfig
	Cooldowns       cooldown.Config
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		PeakShares: PeakSharesConfig{
			MinAgeDays:             4,
			MaxAgeDays:             10,
			ComparisonLookbackDays: 90,
			ComparisonPoolSize:     10,
			MinComparisonPosts:     3,
			AbsoluteMinimum:        15,
			Multiplier:             2.5,
		},
		WatchTime: WatchTimeConfig{
			LookbackDays:            90,
			MinReels:                3,
			CurrentWindow:           3,
			HistoricalPoolSize:      10,
			DropThreshold:           0.25,
			MinHistoricalSeconds:    2,
			SynthesizedFactor:       1.5,
			SynthesizedFloorSeconds: 5,
		},
		ForgottenFormat: ForgottenFormatConfig{
			LookbackDays:      120,
			MinPostsPerFormat: 3,
			UnusedDays:        21,
			Multiplier:        1.3,
			Metric:            models.MetricTotalInteractions,
		},
		UntappedTopic: UntappedTopicConfig{
			LookbackDays:        180,
			RecentDays:          30,
			MinRecentPosts:      3,
			MinOlderPosts:       5,
			TopFraction:         0.2,
			MinSameFormatRecent: 2,
			Multiplier:          1.5,
			Metric:              models.MetricTotalInteractions,
		},
		EngagementPeak: EngagementPeakConfig{
			MinAgeDays:             1,
			MaxAgeDays:             7,
			HistoricalLookbackDays: 60,
			MinHistoricalPosts:     5,
			AbsoluteMinimum:        10,
			Multiplier:             2.0,
		},
		Cooldowns: cooldown.Config{
			TypePeakShares:      7,
			TypeWatchTimeDrop:   14,
			TypeForgottenFormat: 21,
			TypeUntappedTopic:   21,
			TypeEngagementPeak:  7,
		},
	}
}

// WithDefaults fills every unset (zero) threshold from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()

	c.PeakShares.MinAgeDays = orInt(c.PeakShares.MinAgeDays, d.PeakShares.MinAgeDays)
	c.PeakShares.MaxAgeDays = orInt(c.PeakShares.MaxAgeDays, d.PeakShares.MaxAgeDays)
	c.PeakShares.ComparisonLookbackDays = orInt(c.PeakShares.ComparisonLookbackDays, d.PeakShares.ComparisonLookbackDays)
	c.PeakShares.ComparisonPoolSize = orInt(c.PeakShares.ComparisonPoolSize, d.PeakShares.ComparisonPoolSize)
	c.PeakShares.MinComparisonPosts = orInt(c.PeakShares.MinComparisonPosts, d.PeakShares.MinComparisonPosts)
	c.PeakShares.AbsoluteMinimum = orFloat(c.PeakShares.AbsoluteMinimum, d.PeakShares.AbsoluteMinimum)
	c.PeakShares.Multiplier = orFloat(c.PeakShares.Multiplier, d.PeakShares.Multiplier)

	c.WatchTime.LookbackDays = orInt(c.WatchTime.LookbackDays, d.WatchTime.LookbackDays)
	c.WatchTime.MinReels = orInt(c.WatchTime.MinReels, d.WatchTime.MinReels)
	c.WatchTime.CurrentWindow = orInt(c.WatchTime.CurrentWindow, d.WatchTime.CurrentWindow)
	c.WatchTime.HistoricalPoolSize = orInt(c.WatchTime.HistoricalPoolSize, d.WatchTime.HistoricalPoolSize)
	c.WatchTime.DropThreshold = orFloat(c.WatchTime.DropThreshold, d.WatchTime.DropThreshold)
	c.WatchTime.MinHistoricalSeconds = orFloat(c.WatchTime.MinHistoricalSeconds, d.WatchTime.MinHistoricalSeconds)
	c.WatchTime.SynthesizedFactor = orFloat(c.WatchTime.SynthesizedFactor, d.WatchTime.SynthesizedFactor)
	c.WatchTime.SynthesizedFloorSeconds = orFloat(c.WatchTime.SynthesizedFloorSeconds, d.WatchTime.SynthesizedFloorSeconds)

	c.ForgottenFormat.LookbackDays = orInt(c.ForgottenFormat.LookbackDays, d.ForgottenFormat.LookbackDays)
	c.ForgottenFormat.MinPostsPerFormat = orInt(c.ForgottenFormat.MinPostsPerFormat, d.ForgottenFormat.MinPostsPerFormat)
	c.ForgottenFormat.UnusedDays = orInt(c.ForgottenFormat.UnusedDays, d.ForgottenFormat.UnusedDays)
	c.ForgottenFormat.Multiplier = orFloat(c.ForgottenFormat.Multiplier, d.ForgottenFormat.Multiplier)
	if c.ForgottenFormat.Metric == "" {
		c.ForgottenFormat.Metric = d.ForgottenFormat.Metric
	}

	c.UntappedTopic.LookbackDays = orInt(c.UntappedTopic.LookbackDays, d.UntappedTopic.LookbackDays)
	c.UntappedTopic.RecentDays = orInt(c.UntappedTopic.RecentDays, d.UntappedTopic.RecentDays)
	c.UntappedTopic.MinRecentPosts = orInt(c.UntappedTopic.MinRecentPosts, d.UntappedTopic.MinRecentPosts)
	c.UntappedTopic.MinOlderPosts = orInt(c.UntappedTopic.MinOlderPosts, d.UntappedTopic.MinOlderPosts)
	c.UntappedTopic.TopFraction = orFloat(c.UntappedTopic.TopFraction, d.UntappedTopic.TopFraction)
	c.UntappedTopic.MinSameFormatRecent = orInt(c.UntappedTopic.MinSameFormatRecent, d.UntappedTopic.MinSameFormatRecent)
	c.UntappedTopic.Multiplier = orFloat(c.UntappedTopic.Multiplier, d.UntappedTopic.Multiplier)
	if c.UntappedTopic.Metric == "" {
		c.UntappedTopic.Metric = d.UntappedTopic.Metric
	}

	c.EngagementPeak.MinAgeDays = orInt(c.EngagementPeak.MinAgeDays, d.EngagementPeak.MinAgeDays)
	c.EngagementPeak.MaxAgeDays = orInt(c.EngagementPeak.MaxAgeDays, d.EngagementPeak.MaxAgeDays)
	c.EngagementPeak.HistoricalLookbackDays = orInt(c.EngagementPeak.HistoricalLookbackDays, d.EngagementPeak.HistoricalLookbackDays)
	c.EngagementPeak.MinHistoricalPosts = orInt(c.EngagementPeak.MinHistoricalPosts, d.EngagementPeak.MinHistoricalPosts)
	c.EngagementPeak.AbsoluteMinimum = orFloat(c.EngagementPeak.AbsoluteMinimum, d.EngagementPeak.AbsoluteMinimum)
	c.EngagementPeak.Multiplier = orFloat(c.EngagementPeak.Multiplier, d.EngagementPeak.Multiplier)

	c.Cooldowns = d.Cooldowns.Merge(c.Cooldowns)
	return c
}

func orInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func orFloat(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}
