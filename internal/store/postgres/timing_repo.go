package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/postpulse/engage/internal/domain"
	"github.com/postpulse/engage/internal/store"
)

// timingRepo implements store.TimingRepo on PostgreSQL.
type timingRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTimingRepo creates a PostgreSQL timing suggestion repository.
func NewTimingRepo(db *sqlx.DB, timeout time.Duration) store.TimingRepo {
	return &timingRepo{db: db, timeout: timeout}
}

// SaveSuggestions inserts the request's top slots as one immutable batch.
func (r *timingRepo) SaveSuggestions(ctx context.Context, userID string, slots []domain.TimingSlot) error {
	if len(slots) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin timing batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO timing_suggestions (
			id, user_id, suggested_hour, suggested_day_of_week, suggested_date,
			predicted_engagement, confidence, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return fmt.Errorf("prepare timing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, slot := range slots {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), userID, slot.Hour, slot.DayOfWeek, slot.Date,
			slot.PredictedEngagement, slot.Confidence, slot.Reason, now); err != nil {
			return fmt.Errorf("insert timing suggestion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit timing batch: %w", err)
	}
	return nil
}

var _ store.TimingRepo = (*timingRepo)(nil)
