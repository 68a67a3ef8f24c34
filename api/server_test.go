package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/creator-pulse/alerts"
	"github.com/brettboylen/creator-pulse/models"
	"github.com/brettboylen/creator-pulse/stats"
)

var serverNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	pingErr   error
	creators  map[string]models.Creator
	alerts    []models.HistoryEntry
	insights  []models.HistoryEntry
	dialogue  models.DialogueState
	appended  map[string][]models.HistoryEntry
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		creators: map[string]models.Creator{"c1": {ID: "c1", Name: "Ana"}},
		appended: make(map[string][]models.HistoryEntry),
	}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) GetCreator(_ context.Context, id string) (*models.Creator, error) {
	c, ok := f.creators[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) GetAlertHistory(context.Context, string, time.Time) ([]models.HistoryEntry, error) {
	return f.alerts, nil
}

func (f *fakeStore) GetInsightHistory(context.Context, string, time.Time) ([]models.HistoryEntry, error) {
	return f.insights, nil
}

func (f *fakeStore) GetDialogueState(context.Context, string) (models.DialogueState, error) {
	return f.dialogue, nil
}

func (f *fakeStore) AppendHistory(_ context.Context, kind, _ string, entry models.HistoryEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended[kind] = append(f.appended[kind], entry)
	return nil
}

type fakeAlerts struct {
	events  map[string]*models.DetectedEvent
	lastReq alerts.Request
}

func (f *fakeAlerts) Types() []string { return []string{"peak", "drop"} }

func (f *fakeAlerts) Evaluate(_ context.Context, alertType string, req alerts.Request) (*models.DetectedEvent, error) {
	f.lastReq = req
	if alertType != "peak" && alertType != "drop" {
		return nil, fmt.Errorf("%w: %s", alerts.ErrUnknownAlertType, alertType)
	}
	return f.events[alertType], nil
}

func (f *fakeAlerts) EvaluateAny(ctx context.Context, req alerts.Request) *models.DetectedEvent {
	for _, t := range f.Types() {
		if e, _ := f.Evaluate(ctx, t, req); e != nil {
			return e
		}
	}
	return nil
}

type fakeInsights struct{}

func (fakeInsights) Generate(_ context.Context, creator models.Creator, history []models.HistoryEntry, _ time.Time) *models.DetectedEvent {
	return &models.DetectedEvent{
		Type:    "feature_reminder",
		Message: "Tip for " + creator.Name,
		Details: map[string]any{"previous": len(history)},
	}
}

type fakeStats struct{}

func (fakeStats) Statistics() map[string]stats.RunSummary {
	return map[string]stats.RunSummary{"alert": {RunID: "alert-1", Kind: "alert", Creators: 3}}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestServer(store *fakeStore, engine *fakeAlerts) *Server {
	s := NewServer(Options{
		Store:          store,
		Alerts:         engine,
		Insights:       fakeInsights{},
		Stats:          fakeStats{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { io.WriteString(w, "pulse_up 1\n") }),
	}, quietLogger())
	s.now = func() time.Time { return serverNow }
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAlertEndpoint(t *testing.T) {
	engine := &fakeAlerts{events: map[string]*models.DetectedEvent{
		"peak": {Type: "peak", Message: "Your reel is taking off", Details: map[string]any{"peak_day": 2}},
	}}
	store := newFakeStore()
	store.dialogue = models.DialogueState{LastAlertType: "drop"}
	s := newTestServer(store, engine)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"detected", "/api/creators/c1/alerts/peak", http.StatusOK},
		{"nothing to say", "/api/creators/c1/alerts/drop", http.StatusNoContent},
		{"unknown type", "/api/creators/c1/alerts/made_up", http.StatusNotFound},
		{"unknown creator", "/api/creators/nobody/alerts/peak", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := do(s, http.MethodGet, "/api/creators/c1/alerts/peak", "")
	var event models.DetectedEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.Equal(t, "peak", event.Type)
	assert.Equal(t, "drop", engine.lastReq.Dialogue.LastAlertType)
	assert.Equal(t, serverNow, engine.lastReq.Today)
}

func TestAnyAlertEndpoint(t *testing.T) {
	engine := &fakeAlerts{events: map[string]*models.DetectedEvent{"drop": {Type: "drop"}}}
	s := newTestServer(newFakeStore(), engine)

	rec := do(s, http.MethodGet, "/api/creators/c1/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"drop"`)

	s = newTestServer(newFakeStore(), &fakeAlerts{})
	rec = do(s, http.MethodGet, "/api/creators/c1/alerts", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestInsightEndpoint(t *testing.T) {
	store := newFakeStore()
	store.insights = []models.HistoryEntry{{Type: "top_post"}}
	s := newTestServer(store, &fakeAlerts{})

	rec := do(s, http.MethodGet, "/api/creators/c1/insight", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var event models.DetectedEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.Equal(t, "Tip for Ana", event.Message)
	assert.Equal(t, 1.0, event.Details["previous"])
}

func TestRecordHistory(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store, &fakeAlerts{})

	rec := do(s, http.MethodPost, "/api/creators/c1/history",
		`{"kind":"alert","type":"peak","message":"sent","details":{"post_id":"p1"},"timestamp":"2024-06-14T08:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.appended[KindAlert], 1)
	assert.Equal(t, time.Date(2024, 6, 14, 8, 0, 0, 0, time.UTC), store.appended[KindAlert][0].Timestamp)
	assert.Equal(t, "p1", store.appended[KindAlert][0].Details["post_id"])

	rec = do(s, http.MethodPost, "/api/creators/c1/history", `{"kind":"insight","type":"top_post"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, serverNow, store.appended[KindInsight][0].Timestamp)
}

func TestRecordHistoryValidation(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeAlerts{})

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"kind":`},
		{"bad kind", `{"kind":"email","type":"peak"}`},
		{"missing type", `{"kind":"alert","type":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, "/api/creators/c1/history", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRecordHistoryStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.appendErr = errors.New("database is locked")
	s := newTestServer(store, &fakeAlerts{})

	rec := do(s, http.MethodPost, "/api/creators/c1/history", `{"kind":"alert","type":"peak"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	store := newFakeStore()
	store.alerts = []models.HistoryEntry{{Type: "peak", Timestamp: serverNow}}
	s := newTestServer(store, &fakeAlerts{})

	rec := do(s, http.MethodGet, "/api/creators/c1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"peak"`)

	rec = do(s, http.MethodGet, "/api/creators/c1/history?kind=email", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthStatsAndMetrics(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store, &fakeAlerts{})

	rec := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(s, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"alert-1"`)

	rec = do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, "pulse_up 1\n", rec.Body.String())

	store.pingErr = errors.New("closed")
	rec = do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	s := NewServer(Options{
		Store:                newFakeStore(),
		Alerts:               &fakeAlerts{},
		Insights:             fakeInsights{},
		MaxRequestsPerMinute: 2,
	}, quietLogger())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(s, http.MethodGet, "/api/creators/c1/insight", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz", "").Code)
}
