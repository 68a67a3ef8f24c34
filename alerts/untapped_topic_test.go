package alerts

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/creator-pulse/models"
)

// topicRepo: three recent tutorials (100 interactions) and five older posts,
// the best of which is a recipes tutorial with 500 interactions
func topicRepo() *stubRepo {
	repo := &stubRepo{}
	for i := 0; i < 3; i++ {
		p := withInteractions(post(fmt.Sprintf("recent-%d", i), models.ContentReel, 5+i), 100)
		repo.posts = append(repo.posts, withTopic(p, "tutorial", "tips", "fitness"))
	}
	star := withInteractions(post("star", models.ContentReel, 60), 500)
	repo.posts = append(repo.posts, withTopic(star, "Tutorial ", "Recipes", "Food"))
	for i := 0; i < 4; i++ {
		p := withInteractions(post(fmt.Sprintf("older-%d", i), models.ContentImage, 40+i*10), 50)
		repo.posts = append(repo.posts, withTopic(p, "tutorial", "tips", "fitness"))
	}
	return repo
}

func newTopicDetector(repo MetricsReader) *UntappedTopicDetector {
	return &UntappedTopicDetector{guard: testGuard(repo), cfg: DefaultConfig().UntappedTopic}
}

func TestUntappedTopicDetected(t *testing.T) {
	event, err := newTopicDetector(topicRepo()).Detect(context.Background(), request())
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, TypeUntappedTopic, event.Type)
	assert.Equal(t, "star", event.Details["post_id"])
	assert.Equal(t, "same_format_recent", event.Details["reference_kind"])
	assert.Equal(t, 100.0, event.Details["reference_value"])
	assert.Equal(t, 5.0, event.Details["superiority_ratio"])
	assert.Contains(t, event.Message, "recipes")
}

func TestUntappedTopicAlreadyRevisited(t *testing.T) {
	repo := topicRepo()
	revisit := withInteractions(post("revisit", models.ContentReel, 2), 80)
	repo.posts = append(repo.posts, withTopic(revisit, "  TUTORIAL", "recipes ", "food"))

	event, err := newTopicDetector(repo).Detect(context.Background(), request())
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestUntappedTopicFallsBackToAllRecentAverage(t *testing.T) {
	repo := topicRepo()
	for i := range repo.posts {
		if repo.posts[i].ID == "star" {
			repo.posts[i].Format = "vlog"
		}
	}

	event, err := newTopicDetector(repo).Detect(context.Background(), request())
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "all_recent", event.Details["reference_kind"])
}

func TestUntappedTopicNotSuperiorEnough(t *testing.T) {
	repo := topicRepo()
	for i := range repo.posts {
		if repo.posts[i].ID == "star" {
			repo.posts[i].Stats.TotalInteractions = models.Int64(150)
		}
	}

	event, err := newTopicDetector(repo).Detect(context.Background(), request())
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestUntappedTopicRequiresBothPools(t *testing.T) {
	repo := topicRepo()
	repo.posts = repo.posts[:7] // drops one older post, leaving four

	event, err := newTopicDetector(repo).Detect(context.Background(), request())
	require.NoError(t, err)
	assert.Nil(t, event)

	repo = topicRepo()
	repo.posts = repo.posts[1:] // two recent posts
	event, err = newTopicDetector(repo).Detect(context.Background(), request())
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "behind the scenes", normalizeLabel("  Behind\tthe   SCENES "))
	assert.Equal(t, "", normalizeLabel("   "))
}
