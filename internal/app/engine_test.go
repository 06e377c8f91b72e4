package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/engage/internal/domain"
	"github.com/postpulse/engage/internal/metrics"
	"github.com/postpulse/engage/internal/signals"
	"github.com/postpulse/engage/internal/store"
	"github.com/postpulse/engage/internal/store/sqlite"
)

func newTestEngine(t *testing.T) (*Engine, *sqlite.Store) {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(Options{Gateway: s.Gateway()}), s
}

func testFeatures() domain.EngagementFeatures {
	return domain.EngagementFeatures{
		Text:      "Launching the new onboarding flow next week, feedback welcome!",
		Hashtags:  []string{"launch", "product"},
		Hour:      9,
		DayOfWeek: 2,
		Format:    "headline",
	}
}

func TestPredict_FullRoundTrip(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	pred, err := e.Predict(ctx, PredictRequest{UserID: "u1", Features: testFeatures()})
	require.NoError(t, err)

	assert.NotEmpty(t, pred.ID, "prediction persisted with a store-assigned id")
	assert.Equal(t, domain.MethodRegression, pred.Method)
	assert.GreaterOrEqual(t, pred.PredictedEngagement, 0)
	assert.LessOrEqual(t, pred.PredictedEngagement, 100)

	stored, err := s.Get(ctx, "u1", pred.ID)
	require.NoError(t, err)
	assert.Equal(t, pred.PredictedEngagement, stored.PredictedEngagement)
	assert.Equal(t, pred.Factors, stored.Factors)
}

func TestPredict_RequiresUser(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Predict(context.Background(), PredictRequest{Features: testFeatures()})
	assert.ErrorIs(t, err, ErrMissingUser)
}

func TestPredictOutcomeAccuracy_Loop(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	pred, err := e.Predict(ctx, PredictRequest{UserID: "u1", Features: testFeatures()})
	require.NoError(t, err)
	require.NotEmpty(t, pred.ID)

	eval, err := e.RecordOutcome(ctx, "u1", pred.ID, pred.PredictedEngagement-10)
	require.NoError(t, err)
	assert.Equal(t, 90, eval.Accuracy)

	_, err = e.RecordOutcome(ctx, "u1", pred.ID, 50)
	assert.ErrorIs(t, err, store.ErrOutcomeRecorded)

	summary, err := e.AccuracySummary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalPredictions)
	assert.Equal(t, 1, summary.AccuratePredictions)
	assert.InDelta(t, 90.0, summary.AverageAccuracy, 1e-9)
}

func TestRecordOutcome_UnknownPrediction(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.RecordOutcome(context.Background(), "u1", "no-such-id", 50)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecommendTiming_FallbackWithoutHistory(t *testing.T) {
	e, _ := newTestEngine(t)

	slots, err := e.RecommendTiming(context.Background(), "u1")
	require.NoError(t, err)
	require.NotEmpty(t, slots, "slots must never be empty")
	for _, s := range slots {
		assert.LessOrEqual(t, s.Confidence, 0.30+1e-9, "fallback slots carry low confidence")
	}
}

func TestRecommendTiming_UsesMeasuredHistory(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// Three Wednesday 15:00 posts with strong engagement.
	for week := 0; week < 3; week++ {
		eng := 88
		require.NoError(t, e.AddHistoricalPost(ctx, "u1", domain.HistoricalPost{
			Text:       "weekly update",
			Engagement: &eng,
			PostedAt:   time.Date(2026, 2, 4+7*week, 15, 0, 0, 0, time.UTC),
		}))
	}

	slots, err := e.RecommendTiming(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	assert.Equal(t, 15, slots[0].Hour)
	assert.Equal(t, 3, slots[0].DayOfWeek)
	assert.Equal(t, 88, slots[0].PredictedEngagement)
	assert.Greater(t, slots[0].Confidence, 0.30)
}

// staticSource is a fixed-outcome signal source for instrumentation tests.
type staticSource struct {
	id  string
	err error
}

func (s staticSource) Info() signals.SourceInfo {
	return signals.SourceInfo{ID: s.id, Name: s.id}
}

func (s staticSource) Fetch(context.Context) (*signals.Payload, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &signals.Payload{}, nil
}

func TestRecommendTiming_RecordsPerSourceSignalMetrics(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := metrics.NewRegistry()
	agg := signals.NewAggregator([]signals.Source{
		staticSource{id: "market"},
		staticSource{id: "news", err: errors.New("upstream 503")},
	}, nil, signals.DefaultAggregatorConfig())
	e := New(Options{Gateway: s.Gateway(), Aggregator: agg, Metrics: reg})

	_, err = e.RecommendTiming(context.Background(), "u1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `engage_signal_fetches_total{source="market",status="ok"} 1`)
	assert.Contains(t, body, `engage_signal_fetches_total{source="news",status="failed"} 1`)
}

func TestRecommendTiming_RequiresUser(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.RecommendTiming(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingUser)
}

// failingGateway simulates a dead store for best-effort persistence tests.
type failingGateway struct{}

func (failingGateway) Create(context.Context, *domain.Prediction) error { return errors.New("db down") }
func (failingGateway) Get(context.Context, string, string) (*domain.Prediction, error) {
	return nil, errors.New("db down")
}
func (failingGateway) RecordOutcome(context.Context, string, string, int) error {
	return errors.New("db down")
}
func (failingGateway) ListEvaluated(context.Context, string) ([]domain.Prediction, error) {
	return nil, errors.New("db down")
}
func (failingGateway) SaveSuggestions(context.Context, string, []domain.TimingSlot) error {
	return errors.New("db down")
}
func (failingGateway) Add(context.Context, string, domain.HistoricalPost) error {
	return errors.New("db down")
}
func (failingGateway) Recent(context.Context, string, int) ([]domain.HistoricalPost, error) {
	return nil, errors.New("db down")
}
func (failingGateway) Prune(context.Context, int) (int64, error) { return 0, errors.New("db down") }

func deadGateway() store.Gateway {
	g := failingGateway{}
	return store.Gateway{Predictions: g, Timing: g, History: g}
}

func TestPredict_SurvivesDeadStore(t *testing.T) {
	e := New(Options{Gateway: deadGateway()})

	pred, err := e.Predict(context.Background(), PredictRequest{UserID: "u1", Features: testFeatures()})
	require.NoError(t, err, "persistence is best-effort")
	assert.Empty(t, pred.ID, "unsaved predictions carry no id")
	assert.Greater(t, pred.PredictedEngagement, 0)
}

func TestRecommendTiming_SurvivesDeadStore(t *testing.T) {
	e := New(Options{Gateway: deadGateway()})

	slots, err := e.RecommendTiming(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, slots, "fallback slots even with storage down")
}
