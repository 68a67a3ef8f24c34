package db

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/creator-pulse/models"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	database, err := NewDatabase(filepath.Join(t.TempDir(), "pulse.db"), quietLogger())
	require.NoError(t, err)
	database.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { database.Close() })
	return database
}

func testPost(id, creatorID string, t models.ContentType, ageDays int) models.PostRecord {
	return models.PostRecord{
		ID:        id,
		CreatorID: creatorID,
		Type:      t,
		CreatedAt: fixedNow.AddDate(0, 0, -ageDays),
	}
}

func TestNewDatabaseUnreachablePath(t *testing.T) {
	database, err := NewDatabase(filepath.Join(t.TempDir(), "missing", "dir", "pulse.db"), quietLogger())
	require.Error(t, err)
	assert.Nil(t, database)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func TestCreators(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, database.SaveCreator(ctx, models.Creator{ID: "b", Name: "Bea"}))
	require.NoError(t, database.SaveCreator(ctx, models.Creator{ID: "a", Name: "Ana"}))
	require.NoError(t, database.SaveCreator(ctx, models.Creator{ID: "a", Name: "Ana Maria"}))

	creators, err := database.ListCreators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Creator{{ID: "a", Name: "Ana Maria"}, {ID: "b", Name: "Bea"}}, creators)

	missing, err := database.GetCreator(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	found, err := database.GetCreator(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Bea", found.Name)
}

func TestPostRoundTrip(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	p := testPost("p1", "c1", models.ContentReel, 2)
	p.Format = "tutorial"
	p.Proposal = "tips"
	p.Context = "fitness"
	p.Tags = []string{"gym", "morning"}
	p.Description = "Leg day"
	p.Stats = models.PostStats{
		Likes:    models.Int64(-4),
		Comments: models.Int64(12),
		Reach:    models.Int64(900),
	}
	require.NoError(t, database.SavePost(ctx, p))

	posts, err := database.GetRecentPosts(ctx, "c1", 30, models.PostFilter{})
	require.NoError(t, err)
	require.Len(t, posts, 1)

	got := posts[0]
	assert.Equal(t, p.CreatedAt, got.CreatedAt)
	assert.Equal(t, models.ContentReel, got.Type)
	assert.Equal(t, []string{"gym", "morning"}, got.Tags)
	assert.Equal(t, "Leg day", got.Description)
	assert.Nil(t, got.Stats.Likes)
	assert.Equal(t, int64(12), *got.Stats.Comments)
	assert.Nil(t, got.Stats.Shares)
	assert.Nil(t, got.Aggregates)
}

func TestGetRecentPostsWindowOrderAndFilter(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	for _, p := range []models.PostRecord{
		testPost("old", "c1", models.ContentImage, 60),
		testPost("reel", "c1", models.ContentReel, 5),
		testPost("image", "c1", models.ContentImage, 1),
		testPost("other", "c2", models.ContentImage, 1),
	} {
		require.NoError(t, database.SavePost(ctx, p))
	}

	posts, err := database.GetRecentPosts(ctx, "c1", 30, models.PostFilter{})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "image", posts[0].ID)
	assert.Equal(t, "reel", posts[1].ID)
	assert.Equal(t, []string{}, posts[0].Tags)

	reels, err := database.GetRecentPosts(ctx, "c1", 0, models.PostFilter{Types: []models.ContentType{models.ContentReel}})
	require.NoError(t, err)
	require.Len(t, reels, 1)
	assert.Equal(t, "reel", reels[0].ID)

	all, err := database.GetRecentPosts(ctx, "c1", 0, models.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSnapshotsAndAggregates(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, database.SavePost(ctx, testPost("p1", "c1", models.ContentReel, 3)))
	require.NoError(t, database.SavePost(ctx, testPost("p2", "c1", models.ContentImage, 4)))

	for _, snap := range []models.DailySnapshot{
		{PostID: "p1", DayNumber: 2, DailyShares: models.Int64(8), DailyComments: models.Int64(4), AvgWatchTime: models.Float64(11.5)},
		{PostID: "p1", DayNumber: 1, DailyShares: models.Int64(2), DailyComments: models.Int64(3)},
	} {
		require.NoError(t, database.SaveSnapshot(ctx, snap))
	}

	snaps, err := database.GetDailySnapshots(ctx, "p1", "c1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps[0].DayNumber)
	assert.Nil(t, snaps[0].AvgWatchTime)
	assert.Equal(t, 11.5, *snaps[1].AvgWatchTime)
	assert.Equal(t, fixedNow, snaps[1].RecordedAt)

	foreign, err := database.GetDailySnapshots(ctx, "p1", "c2")
	require.NoError(t, err)
	assert.Empty(t, foreign)

	posts, err := database.GetRecentPostsWithAggregates(ctx, "c1", 30)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.NotNil(t, posts[0].Aggregates)
	assert.Equal(t, models.PostAggregates{TotalComments: 7, TotalShares: 10, SnapshotCount: 2, CommentSnapshots: 2}, *posts[0].Aggregates)
	assert.Nil(t, posts[1].Aggregates)
}

func TestSaveSnapshotRejectsInvalidDay(t *testing.T) {
	database := newTestDatabase(t)
	err := database.SaveSnapshot(context.Background(), models.DailySnapshot{PostID: "p1", DayNumber: 0})
	assert.Error(t, err)
}

func TestAccountInsights(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	latest, err := database.GetLatestAccountInsight(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i, followers := range []int64{900, 1000, 1100} {
		require.NoError(t, database.SaveAccountInsight(ctx, models.AccountInsight{
			CreatorID:      "c1",
			RecordedAt:     fixedNow.AddDate(0, 0, -40+i*20),
			FollowersCount: followers,
			Reach:          models.Int64(followers * 3),
		}))
	}

	latest, err = database.GetLatestAccountInsight(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(1100), latest.FollowersCount)
	assert.Equal(t, int64(3300), *latest.Reach)
	assert.Nil(t, latest.Impressions)

	series, err := database.GetAccountInsights(ctx, "c1", 30)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, int64(1000), series[0].FollowersCount)
	assert.Equal(t, int64(1100), series[1].FollowersCount)
}

func TestHistoryAndDialogueState(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	state, err := database.GetDialogueState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.DialogueState{}, state)

	first := models.HistoryEntry{
		Type:      "peak_performance_shares",
		Timestamp: fixedNow.AddDate(0, 0, -10),
		Message:   "Your reel is taking off",
		Details:   map[string]any{"post_id": "p1", "peak_day": 2},
	}
	second := models.HistoryEntry{Type: "reels_watch_time_drop", Timestamp: fixedNow.AddDate(0, 0, -1)}
	require.NoError(t, database.AppendAlertHistory(ctx, "c1", first))
	require.NoError(t, database.AppendAlertHistory(ctx, "c1", second))
	require.NoError(t, database.AppendInsightHistory(ctx, "c1", models.HistoryEntry{Type: "top_post"}))

	alerts, err := database.GetAlertHistory(ctx, "c1", time.Time{})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "reels_watch_time_drop", alerts[0].Type)
	assert.Equal(t, "p1", alerts[1].Details["post_id"])
	assert.Equal(t, 2.0, alerts[1].Details["peak_day"])

	recent, err := database.GetAlertHistory(ctx, "c1", fixedNow.AddDate(0, 0, -5))
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	insightsShown, err := database.GetInsightHistory(ctx, "c1", time.Time{})
	require.NoError(t, err)
	require.Len(t, insightsShown, 1)
	assert.Equal(t, fixedNow, insightsShown[0].Timestamp)

	state, err = database.GetDialogueState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "reels_watch_time_drop", state.LastAlertType)
	assert.Equal(t, second.Timestamp, state.LastAlertAt)
}

func TestAppendHistoryValidation(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	assert.Error(t, database.AppendHistory(ctx, "notification", "c1", models.HistoryEntry{Type: "x"}))
	assert.Error(t, database.AppendAlertHistory(ctx, "c1", models.HistoryEntry{}))
}
