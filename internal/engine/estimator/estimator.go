// Package estimator wraps the external AI engagement estimate behind a
// single-capability interface. The estimate is an opaque oracle: one
// synchronous call returning a bounded score plus free-text rationale.
// Timeouts and transport failures are equivalent — both mean "estimator
// unavailable", never a zero score.
package estimator

import (
	"context"
	"errors"

	"github.com/postpulse/engage/internal/domain"
)

// ErrUnavailable is returned when the estimate cannot be obtained for any
// reason: timeout, transport failure, open circuit, or a malformed reply.
var ErrUnavailable = errors.New("engagement estimator unavailable")

// Estimate is the estimator's independent view of a piece of content.
type Estimate struct {
	Score     int    `json:"score"`     // 0-100
	Rationale string `json:"rationale"` // free text, attached to predictions as breakdown
}

// Estimator provides an independent engagement estimate for a feature set,
// optionally contextualized by up to 50 recent posts (most recent first).
// Implementations must be side-effect free and must honor ctx deadlines.
type Estimator interface {
	Estimate(ctx context.Context, f domain.EngagementFeatures, history []domain.HistoricalPost) (Estimate, error)
}

// MaxHistoryPosts caps the history slice passed to an estimator.
const MaxHistoryPosts = 50

// TrimHistory bounds history to MaxHistoryPosts, preserving order.
func TrimHistory(history []domain.HistoricalPost) []domain.HistoricalPost {
	if len(history) > MaxHistoryPosts {
		return history[:MaxHistoryPosts]
	}
	return history
}
