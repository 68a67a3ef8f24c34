package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/creator-pulse/models"
)

type fixedDetector struct {
	alertType string
	event     *models.DetectedEvent
	err       error
	calls     int
}

func (f *fixedDetector) Type() string { return f.alertType }

func (f *fixedDetector) Detect(context.Context, Request) (*models.DetectedEvent, error) {
	f.calls++
	return f.event, f.err
}

func TestEngineRegistersBuiltInDetectors(t *testing.T) {
	engine := NewEngine(&stubRepo{}, Config{}, quietLogger())
	assert.Equal(t, []string{
		TypePeakShares,
		TypeWatchTimeDrop,
		TypeForgottenFormat,
		TypeUntappedTopic,
		TypeEngagementPeak,
	}, engine.Types())
}

func TestEngineUnknownType(t *testing.T) {
	engine := NewEngine(&stubRepo{}, Config{}, quietLogger())
	event, err := engine.Evaluate(context.Background(), "made_up", request())
	assert.Nil(t, event)
	assert.True(t, errors.Is(err, ErrUnknownAlertType))
}

func TestEngineScenarioA(t *testing.T) {
	engine := NewEngine(peakRepo(40, 0, 10), Config{}, quietLogger())

	event, err := engine.Evaluate(context.Background(), TypePeakShares, request())
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, 2, event.Details["peak_day"])
	assert.Equal(t, 40.0, event.Details["peak_shares"])
}

func TestEngineScenarioBCooldown(t *testing.T) {
	repo := peakRepo(40, 0, 10)
	engine := NewEngine(repo, Config{}, quietLogger())
	req := request()
	req.History = []models.HistoryEntry{{Type: TypePeakShares, Timestamp: today.AddDate(0, 0, -1)}}

	event, err := engine.Evaluate(context.Background(), TypePeakShares, req)
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Equal(t, 0, repo.postCalls)
}

func TestEngineCooldownForEveryType(t *testing.T) {
	for _, alertType := range NewEngine(&stubRepo{}, Config{}, quietLogger()).Types() {
		t.Run(alertType, func(t *testing.T) {
			detector := &fixedDetector{alertType: alertType, event: &models.DetectedEvent{Type: alertType}}
			engine := NewEngine(&stubRepo{}, Config{}, quietLogger())
			engine.Register(detector)

			req := request()
			req.History = []models.HistoryEntry{{Type: alertType, Timestamp: today.Add(-1)}}

			event, err := engine.Evaluate(context.Background(), alertType, req)
			require.NoError(t, err)
			assert.Nil(t, event)
			assert.Equal(t, 0, detector.calls)
		})
	}
}

func TestEngineSwallowsDetectorErrors(t *testing.T) {
	repo := &stubRepo{postsErr: errors.New("db locked")}
	engine := NewEngine(repo, Config{}, quietLogger())

	event, err := engine.Evaluate(context.Background(), TypeForgottenFormat, request())
	assert.NoError(t, err)
	assert.Nil(t, event)
	assert.Equal(t, 1, repo.postCalls)
}

func TestEngineCustomCooldownOverrides(t *testing.T) {
	cfg := Config{Cooldowns: map[string]int{TypePeakShares: 1}}
	engine := NewEngine(peakRepo(40, 0, 10), cfg, quietLogger())
	req := request()
	req.History = []models.HistoryEntry{{Type: TypePeakShares, Timestamp: today.AddDate(0, 0, -2)}}

	event, err := engine.Evaluate(context.Background(), TypePeakShares, req)
	require.NoError(t, err)
	assert.NotNil(t, event)
}

func TestEngineEvaluateAnyReturnsFirstDetection(t *testing.T) {
	engine := &Engine{detectors: map[string]Detector{}, log: quietLogger()}
	first := &fixedDetector{alertType: "first"}
	second := &fixedDetector{alertType: "second", event: &models.DetectedEvent{Type: "second"}}
	third := &fixedDetector{alertType: "third", event: &models.DetectedEvent{Type: "third"}}
	engine.Register(first)
	engine.Register(second)
	engine.Register(third)

	event := engine.EvaluateAny(context.Background(), request())
	require.NotNil(t, event)
	assert.Equal(t, "second", event.Type)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, third.calls)
}

func TestEngineEvaluateAnyStopsOnCancel(t *testing.T) {
	engine := &Engine{detectors: map[string]Detector{}, log: quietLogger()}
	detector := &fixedDetector{alertType: "only", event: &models.DetectedEvent{Type: "only"}}
	engine.Register(detector)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, engine.EvaluateAny(ctx, request()))
	assert.Equal(t, 0, detector.calls)
}

func TestConfigWithDefaultsKeepsOverrides(t *testing.T) {
	cfg := Config{PeakShares: PeakSharesConfig{Multiplier: 4}}.WithDefaults()
	assert.Equal(t, 4.0, cfg.PeakShares.Multiplier)
	assert.Equal(t, 15.0, cfg.PeakShares.AbsoluteMinimum)
	assert.Equal(t, models.MetricTotalInteractions, cfg.ForgottenFormat.Metric)
	assert.Equal(t, 7, cfg.Cooldowns[TypePeakShares])
}
