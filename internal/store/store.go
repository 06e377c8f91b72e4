// Package store defines the persistence gateway consumed by the engine.
// Every engine-side write is best-effort: a failed save is logged by the
// caller and never fails the computed result. The only caller-visible
// error class is ErrNotFound.
package store

import (
	"context"
	"errors"

	"github.com/postpulse/engage/internal/domain"
)

// ErrNotFound is returned when a prediction id is absent or belongs to
// another user. It is the single error class surfaced to API callers.
var ErrNotFound = errors.New("record not found")

// ErrOutcomeRecorded is returned when an outcome is reported for a
// prediction that already has one; predictions are append-only.
var ErrOutcomeRecorded = errors.New("outcome already recorded")

// HistoryRetention caps stored history rows per user. Inserting beyond
// the cap deletes exactly the oldest surplus rows.
const HistoryRetention = 300

// PredictionRepo stores prediction records keyed by an opaque id the
// store assigns at creation.
type PredictionRepo interface {
	// Create persists p, assigning p.ID and p.CreatedAt.
	Create(ctx context.Context, p *domain.Prediction) error
	// Get returns the prediction for (userID, id) or ErrNotFound.
	Get(ctx context.Context, userID, id string) (*domain.Prediction, error)
	// RecordOutcome attaches the observed engagement to a prediction.
	// Returns ErrNotFound for unknown or foreign ids and
	// ErrOutcomeRecorded when the outcome was already attached.
	RecordOutcome(ctx context.Context, userID, id string, actual int) error
	// ListEvaluated returns the user's predictions that have both a
	// predicted and an actual engagement value.
	ListEvaluated(ctx context.Context, userID string) ([]domain.Prediction, error)
}

// TimingRepo persists the top-N timing suggestions of a request as an
// immutable historical record.
type TimingRepo interface {
	SaveSuggestions(ctx context.Context, userID string, slots []domain.TimingSlot) error
}

// HistoryRepo stores the user's posting history consumed by scoring and
// timing analysis.
type HistoryRepo interface {
	// Add appends a post, enforcing HistoryRetention for the user.
	Add(ctx context.Context, userID string, post domain.HistoricalPost) error
	// Recent returns up to limit posts, most recent first.
	Recent(ctx context.Context, userID string, limit int) ([]domain.HistoricalPost, error)
	// Prune trims every user to keep rows, returning rows deleted.
	Prune(ctx context.Context, keep int) (int64, error)
}

// Gateway bundles the three repositories behind one injection point.
type Gateway struct {
	Predictions PredictionRepo
	Timing      TimingRepo
	History     HistoryRepo
}
