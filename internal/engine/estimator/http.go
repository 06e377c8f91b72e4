package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/postpulse/engage/internal/domain"
)

// HTTPConfig configures the network-backed estimator client.
type HTTPConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Timeout          time.Duration `yaml:"timeout"`            // per-call budget, default 8s
	RequestsPerSec   float64       `yaml:"requests_per_sec"`   // rate limit, default 2
	Burst            int           `yaml:"burst"`              // default 4
	BreakerFailures  uint32        `yaml:"breaker_failures"`   // consecutive failures to trip, default 5
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`   // open-state duration, default 30s
	MaxHistoryInBody int           `yaml:"max_history_in_body"` // default MaxHistoryPosts
}

// DefaultHTTPConfig returns production defaults for the estimator client.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:          8 * time.Second,
		RequestsPerSec:   2,
		Burst:            4,
		BreakerFailures:  5,
		BreakerCooldown:  30 * time.Second,
		MaxHistoryInBody: MaxHistoryPosts,
	}
}

// HTTPEstimator calls a JSON estimation endpoint. A circuit breaker keeps
// a failing upstream from stalling every prediction request, and a rate
// limiter keeps bursts inside the provider's quota.
type HTTPEstimator struct {
	cfg     HTTPConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewHTTPEstimator creates a network-backed estimator.
func NewHTTPEstimator(cfg HTTPConfig) *HTTPEstimator {
	def := DefaultHTTPConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = def.RequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}
	if cfg.MaxHistoryInBody <= 0 || cfg.MaxHistoryInBody > MaxHistoryPosts {
		cfg.MaxHistoryInBody = MaxHistoryPosts
	}

	settings := gobreaker.Settings{
		Name:    "engagement-estimator",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("estimator circuit state changed")
		},
	}

	return &HTTPEstimator{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
	}
}

type estimateRequest struct {
	Features domain.EngagementFeatures `json:"features"`
	History  []domain.HistoricalPost   `json:"history,omitempty"`
}

type estimateResponse struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
}

// Estimate performs one estimation call. Every failure mode collapses to
// ErrUnavailable so callers degrade to the regression path uniformly.
func (e *HTTPEstimator) Estimate(ctx context.Context, f domain.EngagementFeatures, history []domain.HistoricalPost) (Estimate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("estimator rate limit wait aborted")
		return Estimate{}, ErrUnavailable
	}

	if len(history) > e.cfg.MaxHistoryInBody {
		history = history[:e.cfg.MaxHistoryInBody]
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.call(ctx, estimateRequest{Features: f, History: history})
	})
	if err != nil {
		log.Warn().Err(err).Msg("estimator call failed, degrading to rule-based scoring")
		return Estimate{}, ErrUnavailable
	}

	est := result.(Estimate)
	est.Score = domain.ClampScore(est.Score)
	return est, nil
}

func (e *HTTPEstimator) call(ctx context.Context, reqBody estimateRequest) (Estimate, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Estimate{}, fmt.Errorf("marshal estimate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/v1/estimate", bytes.NewReader(body))
	if err != nil {
		return Estimate{}, fmt.Errorf("build estimate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Estimate{}, fmt.Errorf("estimate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Estimate{}, fmt.Errorf("estimate request: unexpected status %d", resp.StatusCode)
	}

	var decoded estimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Estimate{}, fmt.Errorf("decode estimate response: %w", err)
	}

	return Estimate{Score: decoded.Score, Rationale: decoded.Rationale}, nil
}
