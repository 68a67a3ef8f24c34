package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/models"
)

const postColumns = `
	p.id, p.creator_id, p.created_at, p.type, p.format, p.proposal, p.context,
	p.tags, p.description, p.likes, p.comments, p.shares, p.saved, p.reach,
	p.impressions, p.video_views, p.total_interactions`

// SavePost saves a post and its latest metrics. Negative counters are dropped.
func (d *Database) SavePost(ctx context.Context, post models.PostRecord) error {
	if err := post.Stats.Validate(); err != nil {
		d.log.WithFields(logrus.Fields{
			"creator_id": post.CreatorID,
			"post_id":    post.ID,
		}).WithError(err).Warn("Dropping invalid metrics")
		post.Stats = post.Stats.Sanitized()
	}

	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	INSERT OR REPLACE INTO posts (
		id, creator_id, created_at, type, format, proposal, context, tags, description,
		likes, comments, shares, saved, reach, impressions, video_views, total_interactions
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	s := post.Stats
	_, err = d.db.ExecContext(
		ctx, query,
		post.ID, post.CreatorID, post.CreatedAt.Unix(), string(post.Type), post.Format,
		post.Proposal, post.Context, string(tagsJSON), post.Description,
		s.Likes, s.Comments, s.Shares, s.Saved, s.Reach, s.Impressions, s.VideoViews, s.TotalInteractions,
	)
	if err != nil {
		return fmt.Errorf("failed to save post: %w", err)
	}

	return nil
}

// SaveSnapshot upserts the checkpoint for one day of a post
func (d *Database) SaveSnapshot(ctx context.Context, snap models.DailySnapshot) error {
	if snap.DayNumber < 1 {
		return fmt.Errorf("invalid day number %d for post %s", snap.DayNumber, snap.PostID)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	recordedAt := snap.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = d.now()
	}

	query := `
	INSERT OR REPLACE INTO daily_snapshots (
		post_id, day_number, daily_shares, daily_views, daily_comments, avg_watch_time, recorded_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(ctx, query,
		snap.PostID, snap.DayNumber, snap.DailyShares, snap.DailyViews,
		snap.DailyComments, snap.AvgWatchTime, recordedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// SaveAccountInsight records an account-level data point
func (d *Database) SaveAccountInsight(ctx context.Context, insight models.AccountInsight) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	INSERT OR REPLACE INTO account_insights (creator_id, recorded_at, followers_count, reach, impressions)
	VALUES (?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(ctx, query,
		insight.CreatorID, insight.RecordedAt.Unix(), insight.FollowersCount, insight.Reach, insight.Impressions,
	)
	if err != nil {
		return fmt.Errorf("failed to save account insight: %w", err)
	}
	return nil
}

// GetRecentPosts returns the creator's posts published within windowDays,
// newest first, narrowed by filter
func (d *Database) GetRecentPosts(ctx context.Context, creatorID string, windowDays int, filter models.PostFilter) ([]models.PostRecord, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	query := `SELECT ` + postColumns + `
	FROM posts p
	WHERE p.creator_id = ? AND p.created_at >= ?
	ORDER BY p.created_at DESC
	`

	rows, err := d.db.QueryContext(ctx, query, creatorID, d.windowStart(windowDays))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent posts: %w", err)
	}
	defer rows.Close()

	posts := make([]models.PostRecord, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		if filter.Matches(post) {
			posts = append(posts, post)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return posts, nil
}

// GetRecentPostsWithAggregates is GetRecentPosts with snapshot totals joined
// onto each post that has snapshots
func (d *Database) GetRecentPostsWithAggregates(ctx context.Context, creatorID string, windowDays int) ([]models.PostRecord, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	query := `SELECT ` + postColumns + `,
		COALESCE(a.total_comments, 0), COALESCE(a.total_shares, 0), COALESCE(a.snapshot_count, 0),
		COALESCE(a.comment_snapshots, 0)
	FROM posts p
	LEFT JOIN (
		SELECT post_id,
			SUM(COALESCE(daily_comments, 0)) AS total_comments,
			SUM(COALESCE(daily_shares, 0)) AS total_shares,
			COUNT(*) AS snapshot_count,
			COUNT(daily_comments) AS comment_snapshots
		FROM daily_snapshots
		GROUP BY post_id
	) a ON a.post_id = p.id
	WHERE p.creator_id = ? AND p.created_at >= ?
	ORDER BY p.created_at DESC
	`

	rows, err := d.db.QueryContext(ctx, query, creatorID, d.windowStart(windowDays))
	if err != nil {
		return nil, fmt.Errorf("failed to query posts with aggregates: %w", err)
	}
	defer rows.Close()

	posts := make([]models.PostRecord, 0)
	for rows.Next() {
		var agg models.PostAggregates
		post, err := scanPost(rows, &agg.TotalComments, &agg.TotalShares, &agg.SnapshotCount, &agg.CommentSnapshots)
		if err != nil {
			return nil, err
		}
		if agg.SnapshotCount > 0 {
			post.Aggregates = &agg
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return posts, nil
}

// GetDailySnapshots returns a post's snapshots ordered by day. The creator id
// scopes the lookup so one creator cannot read another's posts.
func (d *Database) GetDailySnapshots(ctx context.Context, postID, creatorID string) ([]models.DailySnapshot, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	query := `
	SELECT s.post_id, s.day_number, s.daily_shares, s.daily_views, s.daily_comments,
		s.avg_watch_time, s.recorded_at
	FROM daily_snapshots s
	JOIN posts p ON p.id = s.post_id
	WHERE s.post_id = ? AND p.creator_id = ?
	ORDER BY s.day_number
	`

	rows, err := d.db.QueryContext(ctx, query, postID, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for post %s: %w", postID, err)
	}
	defer rows.Close()

	snapshots := make([]models.DailySnapshot, 0)
	for rows.Next() {
		var snap models.DailySnapshot
		var shares, views, comments sql.NullInt64
		var watch sql.NullFloat64
		var recordedAt int64

		if err := rows.Scan(&snap.PostID, &snap.DayNumber, &shares, &views, &comments, &watch, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		snap.DailyShares = nullableInt(shares)
		snap.DailyViews = nullableInt(views)
		snap.DailyComments = nullableInt(comments)
		snap.AvgWatchTime = nullableFloat(watch)
		snap.RecordedAt = fromUnix(recordedAt)
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return snapshots, nil
}

// GetLatestAccountInsight returns the newest account data point, or nil when none exists
func (d *Database) GetLatestAccountInsight(ctx context.Context, creatorID string) (*models.AccountInsight, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	query := `
	SELECT creator_id, recorded_at, followers_count, reach, impressions
	FROM account_insights
	WHERE creator_id = ?
	ORDER BY recorded_at DESC
	LIMIT 1
	`

	insight, err := scanAccountInsight(d.db.QueryRowContext(ctx, query, creatorID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest account insight: %w", err)
	}
	return &insight, nil
}

// GetAccountInsights returns the account data points within windowDays, oldest first
func (d *Database) GetAccountInsights(ctx context.Context, creatorID string, windowDays int) ([]models.AccountInsight, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	query := `
	SELECT creator_id, recorded_at, followers_count, reach, impressions
	FROM account_insights
	WHERE creator_id = ? AND recorded_at >= ?
	ORDER BY recorded_at
	`

	rows, err := d.db.QueryContext(ctx, query, creatorID, d.windowStart(windowDays))
	if err != nil {
		return nil, fmt.Errorf("failed to query account insights: %w", err)
	}
	defer rows.Close()

	insights := make([]models.AccountInsight, 0)
	for rows.Next() {
		insight, err := scanAccountInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account insight: %w", err)
		}
		insights = append(insights, insight)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return insights, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccountInsight(row scanner) (models.AccountInsight, error) {
	var insight models.AccountInsight
	var recordedAt int64
	var reach, impressions sql.NullInt64

	if err := row.Scan(&insight.CreatorID, &recordedAt, &insight.FollowersCount, &reach, &impressions); err != nil {
		return insight, err
	}
	insight.RecordedAt = fromUnix(recordedAt)
	insight.Reach = nullableInt(reach)
	insight.Impressions = nullableInt(impressions)
	return insight, nil
}

// scanPost reads postColumns followed by any extra destinations
func scanPost(rows scanner, extra ...any) (models.PostRecord, error) {
	var post models.PostRecord
	var createdAt int64
	var postType, tags string
	var likes, comments, shares, saved, reach, impressions, views, interactions sql.NullInt64

	dest := []any{
		&post.ID, &post.CreatorID, &createdAt, &postType, &post.Format, &post.Proposal,
		&post.Context, &tags, &post.Description, &likes, &comments, &shares, &saved,
		&reach, &impressions, &views, &interactions,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return post, fmt.Errorf("failed to scan post: %w", err)
	}

	post.CreatedAt = fromUnix(createdAt)
	post.Type = models.ContentType(postType)
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &post.Tags); err != nil {
			return post, fmt.Errorf("failed to decode tags for post %s: %w", post.ID, err)
		}
	}
	post.Stats = models.PostStats{
		Likes:             nullableInt(likes),
		Comments:          nullableInt(comments),
		Shares:            nullableInt(shares),
		Saved:             nullableInt(saved),
		Reach:             nullableInt(reach),
		Impressions:       nullableInt(impressions),
		VideoViews:        nullableInt(views),
		TotalInteractions: nullableInt(interactions),
	}
	return post, nil
}
