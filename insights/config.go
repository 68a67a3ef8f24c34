package insights

import "github.com/brettboylen/creator-pulse/cooldown"

// Fallback insight types, listed in priority order
const (
	TypeFollowerGrowth     = "follower_growth"
	TypeTopPost            = "top_post"
	TypePostingConsistency = "posting_consistency"
	TypeBestDay            = "best_day"
	TypeReachHighlight     = "reach_highlight"
	TypeContentType        = "content_type_performance"
	TypeFormatVariation    = "format_variation"
	TypeProposalSuccess    = "proposal_success"
	TypeAverageLikes       = "average_likes"
	TypeAverageReach       = "average_reach"
	TypeMostUsedFormat     = "most_used_format"
	TypeFollowerCount      = "follower_count"
	TypeTotalPosts         = "total_posts"
	TypeFeatureReminder    = "feature_reminder"
)

// Config holds the fallback insight thresholds
type Config struct {
	LookbackDays int

	MinFollowerGrowth int64

	TopPostMinPosts   int
	TopPostMultiplier float64

	ConsistencyMinPosts int // posts in the last 7 days

	BestDayMinPosts int // per weekday slot
	BestDayMinSlots int

	ReachMinPosts   int
	ReachMultiplier float64

	ContentTypeMinPosts   int
	ContentTypeMultiplier float64

	FormatVariationDays int

	ProposalMinPosts   int
	ProposalMultiplier float64
	ProposalRecentDays int

	DominanceRatio    float64
	DominanceMinPosts int

	Cooldowns cooldown.Config
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		LookbackDays:          30,
		MinFollowerGrowth:     50,
		TopPostMinPosts:       3,
		TopPostMultiplier:     1.5,
		ConsistencyMinPosts:   3,
		BestDayMinPosts:       2,
		BestDayMinSlots:       2,
		ReachMinPosts:         3,
		ReachMultiplier:       1.5,
		ContentTypeMinPosts:   2,
		ContentTypeMultiplier: 1.2,
		FormatVariationDays:   14,
		ProposalMinPosts:      2,
		ProposalMultiplier:    1.3,
		ProposalRecentDays:    7,
		DominanceRatio:        1.5,
		DominanceMinPosts:     2,
		Cooldowns: cooldown.Config{
			TypeFollowerGrowth:     7,
			TypeTopPost:            5,
			TypePostingConsistency: 7,
			TypeBestDay:            14,
			TypeReachHighlight:     7,
			TypeContentType:        14,
			TypeFormatVariation:    10,
			TypeProposalSuccess:    10,
			TypeAverageLikes:       7,
			TypeAverageReach:       7,
			TypeMostUsedFormat:     14,
			TypeFollowerCount:      7,
			TypeTotalPosts:         7,
			// feature_reminder is terminal and never suppressed
		},
	}
}

// WithDefaults fills every unset (zero) threshold from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	c.LookbackDays = orInt(c.LookbackDays, d.LookbackDays)
	if c.MinFollowerGrowth <= 0 {
		c.MinFollowerGrowth = d.MinFollowerGrowth
	}
	c.TopPostMinPosts = orInt(c.TopPostMinPosts, d.TopPostMinPosts)
	c.TopPostMultiplier = orFloat(c.TopPostMultiplier, d.TopPostMultiplier)
	c.ConsistencyMinPosts = orInt(c.ConsistencyMinPosts, d.ConsistencyMinPosts)
	c.BestDayMinPosts = orInt(c.BestDayMinPosts, d.BestDayMinPosts)
	c.BestDayMinSlots = orInt(c.BestDayMinSlots, d.BestDayMinSlots)
	c.ReachMinPosts = orInt(c.ReachMinPosts, d.ReachMinPosts)
	c.ReachMultiplier = orFloat(c.ReachMultiplier, d.ReachMultiplier)
	c.ContentTypeMinPosts = orInt(c.ContentTypeMinPosts, d.ContentTypeMinPosts)
	c.ContentTypeMultiplier = orFloat(c.ContentTypeMultiplier, d.ContentTypeMultiplier)
	c.FormatVariationDays = orInt(c.FormatVariationDays, d.FormatVariationDays)
	c.ProposalMinPosts = orInt(c.ProposalMinPosts, d.ProposalMinPosts)
	c.ProposalMultiplier = orFloat(c.ProposalMultiplier, d.ProposalMultiplier)
	c.ProposalRecentDays = orInt(c.ProposalRecentDays, d.ProposalRecentDays)
	c.DominanceRatio = orFloat(c.DominanceRatio, d.DominanceRatio)
	c.DominanceMinPosts = orInt(c.DominanceMinPosts, d.DominanceMinPosts)
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
