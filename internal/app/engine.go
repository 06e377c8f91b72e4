// Package app orchestrates the prediction and timing flows end to end:
// normalize → predict → persist, and history → rank → corroborate →
// persist. Persistence is best-effort throughout; a computed result is
// returned even when it could not be recorded.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/postpulse/engage/internal/accuracy"
	"github.com/postpulse/engage/internal/domain"
	"github.com/postpulse/engage/internal/engine"
	"github.com/postpulse/engage/internal/engine/estimator"
	"github.com/postpulse/engage/internal/engine/features"
	"github.com/postpulse/engage/internal/engine/rules"
	"github.com/postpulse/engage/internal/metrics"
	"github.com/postpulse/engage/internal/signals"
	"github.com/postpulse/engage/internal/store"
	"github.com/postpulse/engage/internal/timing"
)

// ErrMissingUser is returned when a request carries no user id; user
// scoping is the engine's only hard input requirement.
var ErrMissingUser = errors.New("user id is required")

// PersistedSlots is how many top timing suggestions are persisted per
// request.
const PersistedSlots = 3

// Engine is the library-level entry point invoked by the request layer.
type Engine struct {
	normalizer  *features.Normalizer
	predictor   *engine.Predictor
	analyzer    *timing.Analyzer
	recommender *timing.Recommender
	aggregator  *signals.Aggregator // nil when no signal source is configured
	tracker     *accuracy.Tracker
	gw          store.Gateway
	metrics     *metrics.Registry
}

// Options assembles an engine.
type Options struct {
	Gateway        store.Gateway
	Estimator      estimator.Estimator // nil disables the AI path
	PredictorCfg   engine.Config
	RecommenderCfg timing.RecommenderConfig
	Aggregator     *signals.Aggregator // nil disables external signals
	Metrics        *metrics.Registry   // nil allocates a private registry
}

// New wires an engine from its collaborators.
func New(opts Options) *Engine {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	return &Engine{
		normalizer:  features.NewNormalizer(),
		predictor:   engine.NewPredictor(rules.NewScorer(), opts.Estimator, opts.PredictorCfg),
		analyzer:    timing.NewAnalyzer(),
		recommender: timing.NewRecommender(opts.RecommenderCfg),
		aggregator:  opts.Aggregator,
		tracker:     accuracy.NewTracker(opts.Gateway.Predictions),
		gw:          opts.Gateway,
		metrics:     opts.Metrics,
	}
}

// PredictRequest describes one prediction call.
type PredictRequest struct {
	UserID   string
	PostID   string
	Features domain.EngagementFeatures
	UseAI    bool
	AIOnly   bool
}

// Predict runs the full prediction flow. The returned prediction carries
// a store-assigned id when persistence succeeded and an empty id when it
// did not; either way the prediction itself is valid.
func (e *Engine) Predict(ctx context.Context, req PredictRequest) (*domain.Prediction, error) {
	if req.UserID == "" {
		return nil, ErrMissingUser
	}
	start := time.Now()

	normalized := e.normalizer.Normalize(req.Features)

	// History fetch failure degrades to a history-free prediction.
	history, err := e.gw.History.Recent(ctx, req.UserID, estimator.MaxHistoryPosts)
	if err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID).Msg("history unavailable, predicting without it")
		history = nil
	}

	pred := e.predictor.Predict(ctx, normalized, history, engine.Options{
		UseAI:  req.UseAI,
		AIOnly: req.AIOnly,
	})
	pred.UserID = req.UserID
	pred.PostID = req.PostID

	if req.UseAI && pred.Method == domain.MethodRegression {
		e.metrics.EstimatorFailures.Inc()
	}
	e.metrics.Predictions.WithLabelValues(string(pred.Method)).Inc()
	e.metrics.PredictionDuration.Observe(time.Since(start).Seconds())

	if err := e.gw.Predictions.Create(ctx, &pred); err != nil {
		e.metrics.PersistenceErrors.WithLabelValues("prediction_create").Inc()
		log.Error().Err(err).Str("user_id", req.UserID).Msg("prediction save failed, returning unsaved result")
		pred.ID = ""
	}
	return &pred, nil
}

// RecommendTiming returns the ranked slot list for a user and persists
// the top slots as an immutable record.
func (e *Engine) RecommendTiming(ctx context.Context, userID string) ([]domain.TimingSlot, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	e.metrics.TimingRequests.Inc()

	history, err := e.gw.History.Recent(ctx, userID, timing.MaxHistoryPosts)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("history unavailable, falling back to default slots")
		history = nil
	}

	now := time.Now()
	buckets := e.analyzer.Rank(history, now)

	var bundle *signals.Bundle
	if e.aggregator != nil {
		bundle = e.aggregator.Collect(ctx)
		e.recordSignalMetrics(bundle)
	}

	slots := e.recommender.Recommend(buckets, bundle, now)

	persisted := slots
	if len(persisted) > PersistedSlots {
		persisted = persisted[:PersistedSlots]
	}
	if err := e.gw.Timing.SaveSuggestions(ctx, userID, persisted); err != nil {
		e.metrics.PersistenceErrors.WithLabelValues("timing_save").Inc()
		log.Error().Err(err).Str("user_id", userID).Msg("timing suggestion save failed, returning results anyway")
	}
	return slots, nil
}

// RecordOutcome reports an observed engagement for a stored prediction.
// store.ErrNotFound and store.ErrOutcomeRecorded surface to the caller;
// everything else in the flow is best-effort.
func (e *Engine) RecordOutcome(ctx context.Context, userID, predictionID string, actual int) (*accuracy.Evaluation, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	eval, err := e.tracker.RecordOutcome(ctx, userID, predictionID, actual)
	if err != nil {
		return nil, err
	}
	e.metrics.OutcomesRecorded.Inc()
	e.metrics.AccuracyObserved.Observe(float64(eval.Accuracy))
	return eval, nil
}

// AccuracySummary returns the user's running accuracy statistics.
func (e *Engine) AccuracySummary(ctx context.Context, userID string) (*domain.AccuracySummary, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return e.tracker.Summary(ctx, userID)
}

// AddHistoricalPost records a measured post into the user's history,
// subject to the retention cap.
func (e *Engine) AddHistoricalPost(ctx context.Context, userID string, post domain.HistoricalPost) error {
	if userID == "" {
		return ErrMissingUser
	}
	return e.gw.History.Add(ctx, userID, post)
}

func (e *Engine) recordSignalMetrics(bundle *signals.Bundle) {
	for _, res := range bundle.Sources {
		status := "ok"
		if !res.OK {
			status = "failed"
		}
		e.metrics.SignalFetches.WithLabelValues(res.ID, status).Inc()
	}
}
