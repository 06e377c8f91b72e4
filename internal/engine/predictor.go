// Package engine combines the rule-based scorer with the AI estimate into
// a single engagement prediction. The predictor is the degradation
// boundary of the pipeline: whatever fails inside it, the caller always
// receives a usable prediction.
package engine

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/postpulse/engage/internal/domain"
	"github.com/postpulse/engage/internal/engine/estimator"
	"github.com/postpulse/engage/internal/engine/rules"
)

// Config holds the hybrid blending tunables. The AI-estimate weight ramps
// linearly from MinAIWeight with no history to MaxAIWeight at
// HistorySaturation posts; the rule-based floor is never fully excluded.
type Config struct {
	RegressionConfidence float64 `yaml:"regression_confidence"` // default 0.55
	MinAIWeight          float64 `yaml:"min_ai_weight"`         // default 0.30
	MaxAIWeight          float64 `yaml:"max_ai_weight"`         // default 0.70
	HistorySaturation    int     `yaml:"history_saturation"`    // default 50 posts
}

// DefaultConfig returns the production blending parameters.
func DefaultConfig() Config {
	return Config{
		RegressionConfidence: 0.55,
		MinAIWeight:          0.30,
		MaxAIWeight:          0.70,
		HistorySaturation:    50,
	}
}

// Options selects the prediction path for one request.
type Options struct {
	// UseAI enables the AI estimate. When false the predictor is fully
	// deterministic and reports the regression method.
	UseAI bool
	// AIOnly reports the raw AI estimate as the aggregate instead of
	// blending. Ignored unless UseAI is set and the estimate succeeds.
	AIOnly bool
}

// Predictor blends rule-based scoring with the AI estimate.
type Predictor struct {
	rules *rules.Scorer
	est   estimator.Estimator
	cfg   Config
}

// NewPredictor creates a hybrid predictor. est may be nil, which pins
// every prediction to the regression method.
func NewPredictor(scorer *rules.Scorer, est estimator.Estimator, cfg Config) *Predictor {
	def := DefaultConfig()
	if cfg.RegressionConfidence <= 0 {
		cfg.RegressionConfidence = def.RegressionConfidence
	}
	if cfg.MinAIWeight <= 0 {
		cfg.MinAIWeight = def.MinAIWeight
	}
	if cfg.MaxAIWeight <= 0 || cfg.MaxAIWeight < cfg.MinAIWeight {
		cfg.MaxAIWeight = def.MaxAIWeight
	}
	if cfg.MaxAIWeight > 1 {
		cfg.MaxAIWeight = 1
	}
	if cfg.HistorySaturation <= 0 {
		cfg.HistorySaturation = def.HistorySaturation
	}
	return &Predictor{rules: scorer, est: est, cfg: cfg}
}

// Predict produces a prediction for normalized features. It never returns
// an error: estimator failures degrade to the regression path, and any
// unexpected internal failure yields the neutral default prediction.
func (p *Predictor) Predict(ctx context.Context, f domain.EngagementFeatures, history []domain.HistoricalPost, opts Options) (pred domain.Prediction) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("predictor internal failure, returning neutral prediction")
			pred = NeutralPrediction()
		}
	}()

	factors := p.rules.Score(f)
	ruleAggregate := p.rules.Aggregate(factors)

	pred = domain.Prediction{
		PredictedEngagement: ruleAggregate,
		Confidence:          p.cfg.RegressionConfidence,
		Method:              domain.MethodRegression,
		Factors:             factors,
	}

	if !opts.UseAI || p.est == nil {
		return pred
	}

	est, err := p.est.Estimate(ctx, f, estimator.TrimHistory(history))
	if err != nil {
		// Unavailable estimator is an expected degradation, already logged
		// by the estimator itself. Method stays regression.
		return pred
	}

	agreement := 1 - math.Abs(float64(est.Score-ruleAggregate))/100

	if opts.AIOnly {
		pred.Method = domain.MethodAI
		pred.PredictedEngagement = est.Score
		pred.Confidence = clampRange(0.5+0.5*agreement, 0.5, 0.95)
		pred.Breakdown = est.Rationale
		return pred
	}

	aiWeight := p.aiWeight(len(history))
	blended := aiWeight*float64(est.Score) + (1-aiWeight)*float64(ruleAggregate)

	pred.Method = domain.MethodHybrid
	pred.PredictedEngagement = domain.ClampScore(int(math.Round(blended)))
	pred.Confidence = clampRange(0.55+0.4*agreement, 0.5, 0.95)
	pred.Breakdown = est.Rationale
	return pred
}

// aiWeight ramps linearly with history volume: more measured posts give
// the estimator more context to trust.
func (p *Predictor) aiWeight(historyCount int) float64 {
	if historyCount > p.cfg.HistorySaturation {
		historyCount = p.cfg.HistorySaturation
	}
	ramp := float64(historyCount) / float64(p.cfg.HistorySaturation)
	return p.cfg.MinAIWeight + (p.cfg.MaxAIWeight-p.cfg.MinAIWeight)*ramp
}

// NeutralPrediction is the fallback returned when the predictor cannot
// compute anything at all.
func NeutralPrediction() domain.Prediction {
	return domain.Prediction{
		PredictedEngagement: 50,
		Confidence:          0.5,
		Method:              domain.MethodRegression,
		Factors:             domain.Factors{TextQuality: 50, TimingScore: 50, HashtagScore: 50, FormatScore: 50},
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
