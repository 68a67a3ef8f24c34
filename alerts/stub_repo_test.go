package alerts

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/creator-pulse/models"
)

var today = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type stubRepo struct {
	posts        []models.PostRecord
	snapshots    map[string][]models.DailySnapshot
	postsErr     error
	snapshotErrs map[string]error
	postCalls    int
	snapshotHits int
}

func (s *stubRepo) GetRecentPosts(_ context.Context, _ string, _ int, filter models.PostFilter) ([]models.PostRecord, error) {
	s.postCalls++
	if s.postsErr != nil {
		return nil, s.postsErr
	}
	out := make([]models.PostRecord, 0, len(s.posts))
	for _, p := range s.posts {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubRepo) GetDailySnapshots(_ context.Context, postID, _ string) ([]models.DailySnapshot, error) {
	s.snapshotHits++
	if err := s.snapshotErrs[postID]; err != nil {
		return nil, err
	}
	return s.snapshots[postID], nil
}

func (s *stubRepo) GetRecentPostsWithAggregates(ctx context.Context, creatorID string, windowDays int) ([]models.PostRecord, error) {
	return s.GetRecentPosts(ctx, creatorID, windowDays, models.PostFilter{})
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testGuard(repo MetricsReader) guard {
	return guard{repo: repo, cooldowns: DefaultConfig().Cooldowns, log: quietLogger()}
}

func post(id string, t models.ContentType, ageDays int) models.PostRecord {
	return models.PostRecord{
		ID:        id,
		CreatorID: "creator-1",
		Type:      t,
		CreatedAt: today.AddDate(0, 0, -ageDays),
	}
}

func withInteractions(p models.PostRecord, v int64) models.PostRecord {
	p.Stats.TotalInteractions = models.Int64(v)
	return p
}

func withTopic(p models.PostRecord, format, proposal, context string) models.PostRecord {
	p.Format = format
	p.Proposal = proposal
	p.Context = context
	return p
}

func sharesSnapshot(postID string, day int, shares int64) models.DailySnapshot {
	return models.DailySnapshot{PostID: postID, DayNumber: day, DailyShares: models.Int64(shares)}
}

func watchSnapshot(postID string, day int, seconds float64) models.DailySnapshot {
	return models.DailySnapshot{PostID: postID, DayNumber: day, AvgWatchTime: models.Float64(seconds)}
}

func request() Request {
	return Request{CreatorID: "creator-1", Today: today}
}
