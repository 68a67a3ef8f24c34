package insights

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/creator-pulse/models"
)

// a Saturday
var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

var creator = models.Creator{ID: "creator-1", Name: "Ana"}

type stubRepo struct {
	posts     []models.PostRecord
	series    []models.AccountInsight
	latest    *models.AccountInsight
	postsErr  error
	seriesErr error
	latestErr error
}

func (s *stubRepo) GetRecentPosts(context.Context, string, int, models.PostFilter) ([]models.PostRecord, error) {
	return s.posts, s.postsErr
}

func (s *stubRepo) GetAccountInsights(context.Context, string, int) ([]models.AccountInsight, error) {
	return s.series, s.seriesErr
}

func (s *stubRepo) GetLatestAccountInsight(context.Context, string) (*models.AccountInsight, error) {
	return s.latest, s.latestErr
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func post(id string, t models.ContentType, ageDays int, interactions int64) models.PostRecord {
	return models.PostRecord{
		ID:        id,
		CreatorID: creator.ID,
		Type:      t,
		CreatedAt: now.AddDate(0, 0, -ageDays),
		Stats:     models.PostStats{TotalInteractions: models.Int64(interactions)},
	}
}

func followers(ageDays int, count int64) models.AccountInsight {
	return models.AccountInsight{CreatorID: creator.ID, RecordedAt: now.AddDate(0, 0, -ageDays), FollowersCount: count}
}

func generate(t *testing.T, repo *stubRepo, history ...models.HistoryEntry) *models.DetectedEvent {
	t.Helper()
	event := NewEngine(repo, Config{}, quietLogger()).Generate(context.Background(), creator, history, now)
	require.NotNil(t, event)
	return event
}

func TestGeneratorOrder(t *testing.T) {
	engine := NewEngine(&stubRepo{}, Config{}, quietLogger())
	assert.Equal(t, []string{
		TypeFollowerGrowth,
		TypeTopPost,
		TypePostingConsistency,
		TypeBestDay,
		TypeReachHighlight,
		TypeContentType,
		TypeFormatVariation,
		TypeProposalSuccess,
		TypeAverageLikes,
		TypeAverageReach,
		TypeMostUsedFormat,
		TypeFollowerCount,
		TypeTotalPosts,
		TypeFeatureReminder,
	}, engine.Types())
}

func TestScenarioDPostingConsistency(t *testing.T) {
	repo := &stubRepo{series: []models.AccountInsight{followers(20, 1000), followers(1, 1020)}}
	for i := 0; i < 4; i++ {
		repo.posts = append(repo.posts, post(fmt.Sprintf("p%d", i), models.ContentImage, i+1, 30))
	}

	event := generate(t, repo)
	assert.Equal(t, TypePostingConsistency, event.Type)
	assert.Equal(t, 4, event.Details["posts_last_week"])
}

func TestFollowerGrowthWins(t *testing.T) {
	repo := &stubRepo{series: []models.AccountInsight{followers(20, 1000), followers(10, 1030), followers(1, 1060)}}

	event := generate(t, repo)
	assert.Equal(t, TypeFollowerGrowth, event.Type)
	assert.Equal(t, int64(60), event.Details["follower_growth"])
	assert.Equal(t, 6.0, event.Details["growth_percent"])
}

func TestFollowerGrowthIgnoresPointsOutsideLookback(t *testing.T) {
	repo := &stubRepo{series: []models.AccountInsight{followers(90, 100), followers(1, 1060), followers(5, 1050)}}

	event := generate(t, repo)
	assert.NotEqual(t, TypeFollowerGrowth, event.Type)
}

func topPostRepo() *stubRepo {
	return &stubRepo{posts: []models.PostRecord{
		post("a", models.ContentImage, 10, 10),
		post("b", models.ContentImage, 12, 10),
		post("c", models.ContentImage, 14, 100),
	}}
}

func TestTopPost(t *testing.T) {
	event := generate(t, topPostRepo())
	assert.Equal(t, TypeTopPost, event.Type)
	assert.Equal(t, "c", event.Details["post_id"])
	assert.Equal(t, 2.5, event.Details["ratio"])
}

func TestCooldownSkipsToNextGenerator(t *testing.T) {
	history := []models.HistoryEntry{{Type: TypeTopPost, Timestamp: now.AddDate(0, 0, -1)}}

	event := generate(t, topPostRepo(), history...)
	assert.Equal(t, TypeTotalPosts, event.Type)
	assert.Equal(t, 3, event.Details["posts"])
}

func TestTerminalGeneratorAlwaysReachable(t *testing.T) {
	var history []models.HistoryEntry
	for _, insightType := range NewEngine(&stubRepo{}, Config{}, quietLogger()).Types() {
		history = append(history, models.HistoryEntry{Type: insightType, Timestamp: now.Add(-time.Hour)})
	}

	event := generate(t, topPostRepo(), history...)
	assert.Equal(t, TypeFeatureReminder, event.Type)
}

func TestFeatureReminderRotates(t *testing.T) {
	var history []models.HistoryEntry
	for i := 0; i < 5; i++ {
		history = append(history, models.HistoryEntry{Type: TypeFeatureReminder, Timestamp: now.AddDate(0, 0, -i-1)})
	}

	event := generate(t, &stubRepo{}, history...)
	assert.Equal(t, TypeFeatureReminder, event.Type)
	assert.Equal(t, 1, event.Details["reminder_index"])
	assert.Equal(t, featureReminders[1], event.Message)
}

func TestReadErrorsDegradeToReminder(t *testing.T) {
	boom := errors.New("database is locked")
	repo := &stubRepo{postsErr: boom, seriesErr: boom, latestErr: boom}

	event := generate(t, repo)
	assert.Equal(t, TypeFeatureReminder, event.Type)
}

func TestLatestAccountInsightFallback(t *testing.T) {
	latest := followers(1, 1200)
	event := generate(t, &stubRepo{latest: &latest})
	assert.Equal(t, TypeFollowerCount, event.Type)
	assert.Equal(t, int64(1200), event.Details["followers"])
}

func TestGenerateIsDeterministic(t *testing.T) {
	repo := topPostRepo()
	first := generate(t, repo)
	second := generate(t, repo)
	assert.Equal(t, first, second)
}

func TestPickLeavesReportUntouched(t *testing.T) {
	engine := NewEngine(&stubRepo{}, Config{}, quietLogger())
	report := BuildReport(nil, now, 30)
	history := []models.HistoryEntry{{Type: TypeFeatureReminder, Timestamp: now.AddDate(0, 0, -2)}}

	first := engine.Pick(creator, report, nil, history)
	second := engine.Pick(creator, report, nil, history)

	require.NotNil(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, first.Details["reminder_index"])
	assert.Equal(t, 0, report.PreviousReminders)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{TopPostMultiplier: 3, Cooldowns: map[string]int{TypeTopPost: 2}}.WithDefaults()
	assert.Equal(t, 3.0, cfg.TopPostMultiplier)
	assert.Equal(t, 30, cfg.LookbackDays)
	assert.Equal(t, int64(50), cfg.MinFollowerGrowth)
	assert.Equal(t, 2, cfg.Cooldowns[TypeTopPost])
	assert.Equal(t, 14, cfg.Cooldowns[TypeBestDay])
	assert.NotContains(t, cfg.Cooldowns, TypeFeatureReminder)
}
