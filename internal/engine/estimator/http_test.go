package estimator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/engage/internal/domain"
)

func testConfig(baseURL string) HTTPConfig {
	cfg := DefaultHTTPConfig()
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	cfg.Timeout = 2 * time.Second
	cfg.RequestsPerSec = 1000 // never throttle in tests
	cfg.Burst = 1000
	return cfg
}

func TestEstimate_Success(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/estimate", r.URL.Path)

		var req struct {
			Features domain.EngagementFeatures `json:"features"`
			History  []domain.HistoricalPost   `json:"history"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello world", req.Features.Text)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"score":     87,
			"rationale": "strong opener",
		})
	}))
	defer srv.Close()

	e := NewHTTPEstimator(testConfig(srv.URL))
	est, err := e.Estimate(context.Background(), domain.EngagementFeatures{Text: "hello world"}, nil)

	require.NoError(t, err)
	assert.Equal(t, 87, est.Score)
	assert.Equal(t, "strong opener", est.Rationale)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestEstimate_OutOfRangeScoreClamped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"score": 250})
	}))
	defer srv.Close()

	e := NewHTTPEstimator(testConfig(srv.URL))
	est, err := e.Estimate(context.Background(), domain.EngagementFeatures{}, nil)

	require.NoError(t, err)
	assert.Equal(t, 100, est.Score)
}

func TestEstimate_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewHTTPEstimator(testConfig(srv.URL))
	_, err := e.Estimate(context.Background(), domain.EngagementFeatures{}, nil)

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEstimate_MalformedReplyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	e := NewHTTPEstimator(testConfig(srv.URL))
	_, err := e.Estimate(context.Background(), domain.EngagementFeatures{}, nil)

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEstimate_TimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	e := NewHTTPEstimator(cfg)

	_, err := e.Estimate(context.Background(), domain.EngagementFeatures{}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEstimate_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BreakerFailures = 3
	e := NewHTTPEstimator(cfg)

	for i := 0; i < 6; i++ {
		_, err := e.Estimate(context.Background(), domain.EngagementFeatures{}, nil)
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	// After the third consecutive failure the breaker stops hitting the
	// upstream entirely.
	assert.Equal(t, 3, hits)
}

func TestEstimate_HistoryTruncatedInBody(t *testing.T) {
	var gotHistory int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			History []domain.HistoricalPost `json:"history"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotHistory = len(req.History)
		json.NewEncoder(w).Encode(map[string]interface{}{"score": 50})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxHistoryInBody = 10
	e := NewHTTPEstimator(cfg)

	history := make([]domain.HistoricalPost, 30)
	for i := range history {
		history[i] = domain.HistoricalPost{Text: "post", PostedAt: time.Now()}
	}
	_, err := e.Estimate(context.Background(), domain.EngagementFeatures{}, history)

	require.NoError(t, err)
	assert.Equal(t, 10, gotHistory)
}
