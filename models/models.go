package models

import (
	"fmt"
	"strings"
	"time"
)

// ContentType is the kind of media a post was published as
type ContentType string

const (
	ContentImage    ContentType = "image"
	ContentCarousel ContentType = "carousel"
	ContentReel     ContentType = "reel"
	ContentVideo    ContentType = "video"
	ContentStory    ContentType = "story"
)

// IsStatic reports whether the content type is a still (non-video) post
func (t ContentType) IsStatic() bool {
	return t == ContentImage || t == ContentCarousel
}

// ParseContentType normalizes a raw content type string
func ParseContentType(raw string) (ContentType, error) {
	switch ContentType(strings.ToLower(strings.TrimSpace(raw))) {
	case ContentImage:
		return ContentImage, nil
	case ContentCarousel, "carousel_album":
		return ContentCarousel, nil
	case ContentReel, "reels":
		return ContentReel, nil
	case ContentVideo:
		return ContentVideo, nil
	case ContentStory:
		return ContentStory, nil
	}
	return "", fmt.Errorf("unknown content type %q", raw)
}

// Creator is an account whose content performance is analyzed
type Creator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PostAggregates holds rollup totals joined onto a post by the repository
type PostAggregates struct {
	TotalComments    int64 `json:"total_comments"`
	TotalShares      int64 `json:"total_shares"`
	SnapshotCount    int   `json:"snapshot_count"`
	CommentSnapshots int   `json:"comment_snapshots"` // snapshots that reported daily comments
}

// PostRecord represents a published post and its latest metrics
type PostRecord struct {
	ID          string          `json:"id"`
	CreatorID   string          `json:"creator_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Type        ContentType     `json:"type"`
	Format      string          `json:"format"`
	Proposal    string          `json:"proposal"`
	Context     string          `json:"context"`
	Tags        []string        `json:"tags"`
	Description string          `json:"description"`
	Stats       PostStats       `json:"stats"`
	Aggregates  *PostAggregates `json:"aggregates,omitempty"`
}

// AgeInDays returns the number of whole days between publication and now
func (p PostRecord) AgeInDays(now time.Time) int {
	if now.Before(p.CreatedAt) {
		return 0
	}
	return int(now.Sub(p.CreatedAt).Hours() / 24)
}

// DailySnapshot is a per-day checkpoint of a post's delta metrics
type DailySnapshot struct {
	PostID        string    `json:"post_id"`
	DayNumber     int       `json:"day_number"`
	DailyShares   *int64    `json:"daily_shares,omitempty"`
	DailyViews    *int64    `json:"daily_views,omitempty"`
	DailyComments *int64    `json:"daily_comments,omitempty"`
	AvgWatchTime  *float64  `json:"avg_watch_time,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// AccountInsight holds account-level facts at a point in time
type AccountInsight struct {
	CreatorID      string    `json:"creator_id"`
	RecordedAt     time.Time `json:"recorded_at"`
	FollowersCount int64     `json:"followers_count"`
	Reach          *int64    `json:"reach,omitempty"`
	Impressions    *int64    `json:"impressions,omitempty"`
}

// HistoryEntry records that an event of a given type was shown to a creator
type HistoryEntry struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// DialogueState is the conversational state relevant to alert selection
type DialogueState struct {
	LastAlertType string    `json:"last_alert_type"`
	LastAlertAt   time.Time `json:"last_alert_at"`
}

// DetectedEvent is the outcome of a single detector or generator
type DetectedEvent struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// PostFilter narrows a recent-posts query
type PostFilter struct {
	Types  []ContentType
	Format string
	// Before, when set, only returns posts published strictly before it
	Before time.Time
}

// Matches reports whether a post passes the filter
func (f PostFilter) Matches(p PostRecord) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if p.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Format != "" && !strings.EqualFold(f.Format, p.Format) {
		return false
	}
	if !f.Before.IsZero() && !p.CreatedAt.Before(f.Before) {
		return false
	}
	return true
}
