// Package accuracy closes the prediction feedback loop: it records
// observed outcomes against stored predictions and maintains per-method
// running accuracy statistics.
package accuracy

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/postpulse/engage/internal/domain"
	"github.com/postpulse/engage/internal/store"
)

// AccurateThreshold is the accuracy score at which a prediction counts as
// accurate in summaries.
const AccurateThreshold = 70

// Evaluation is the result of recording one outcome.
type Evaluation struct {
	PredictionID string        `json:"prediction_id"`
	Method       domain.Method `json:"method"`
	Predicted    int           `json:"predicted"`
	Actual       int           `json:"actual"`
	Accuracy     int           `json:"accuracy"`
}

// Tracker evaluates outcomes against stored predictions.
type Tracker struct {
	predictions store.PredictionRepo
}

// NewTracker creates an accuracy tracker over the prediction store.
func NewTracker(predictions store.PredictionRepo) *Tracker {
	return &Tracker{predictions: predictions}
}

// RecordOutcome attaches the observed engagement to the prediction and
// returns its accuracy score. store.ErrNotFound surfaces when the id is
// unknown or owned by another user; store.ErrOutcomeRecorded when the
// prediction was already evaluated.
func (t *Tracker) RecordOutcome(ctx context.Context, userID, predictionID string, actual int) (*Evaluation, error) {
	actual = domain.ClampScore(actual)

	pred, err := t.predictions.Get(ctx, userID, predictionID)
	if err != nil {
		return nil, fmt.Errorf("look up prediction %s: %w", predictionID, err)
	}

	if err := t.predictions.RecordOutcome(ctx, userID, predictionID, actual); err != nil {
		return nil, fmt.Errorf("record outcome for %s: %w", predictionID, err)
	}

	eval := &Evaluation{
		PredictionID: predictionID,
		Method:       pred.Method,
		Predicted:    pred.PredictedEngagement,
		Actual:       actual,
		Accuracy:     domain.Accuracy(pred.PredictedEngagement, actual),
	}
	log.Info().
		Str("prediction_id", predictionID).
		Str("method", string(pred.Method)).
		Int("predicted", eval.Predicted).
		Int("actual", eval.Actual).
		Int("accuracy", eval.Accuracy).
		Msg("prediction outcome recorded")
	return eval, nil
}

// Summary computes the user's aggregate accuracy across every evaluated
// prediction. All three methods appear in the breakdown even with zero
// samples so callers can render a stable table.
func (t *Tracker) Summary(ctx context.Context, userID string) (*domain.AccuracySummary, error) {
	evaluated, err := t.predictions.ListEvaluated(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list evaluated predictions: %w", err)
	}

	summary := &domain.AccuracySummary{
		MethodBreakdown: make(map[domain.Method]domain.MethodAccuracy, 3),
	}
	for _, m := range domain.Methods() {
		summary.MethodBreakdown[m] = domain.MethodAccuracy{}
	}

	var total int
	sums := make(map[domain.Method]int, 3)
	for _, p := range evaluated {
		if p.ActualEngagement == nil {
			continue
		}
		acc := domain.Accuracy(p.PredictedEngagement, *p.ActualEngagement)
		total += acc
		summary.TotalPredictions++
		if acc >= AccurateThreshold {
			summary.AccuratePredictions++
		}

		entry := summary.MethodBreakdown[p.Method]
		entry.Count++
		sums[p.Method] += acc
		summary.MethodBreakdown[p.Method] = entry
	}

	for m, entry := range summary.MethodBreakdown {
		if entry.Count > 0 {
			entry.AvgAccuracy = round1(float64(sums[m]) / float64(entry.Count))
			summary.MethodBreakdown[m] = entry
		}
	}
	if summary.TotalPredictions > 0 {
		summary.AverageAccuracy = round1(float64(total) / float64(summary.TotalPredictions))
	}
	return summary, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
