package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/postpulse/engage/internal/domain"
	"github.com/postpulse/engage/internal/store"
)

// predictionsRepo implements store.PredictionRepo on PostgreSQL.
type predictionsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPredictionsRepo creates a PostgreSQL prediction repository.
func NewPredictionsRepo(db *sqlx.DB, timeout time.Duration) store.PredictionRepo {
	return &predictionsRepo{db: db, timeout: timeout}
}

func (r *predictionsRepo) Create(ctx context.Context, p *domain.Prediction) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO predictions (
			id, user_id, post_id, predicted_engagement, confidence, method,
			text_quality, timing_score, hashtag_score, format_score,
			breakdown, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.UserID, nullString(p.PostID), p.PredictedEngagement, p.Confidence, p.Method,
		p.Factors.TextQuality, p.Factors.TimingScore, p.Factors.HashtagScore, p.Factors.FormatScore,
		nullString(p.Breakdown), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (r *predictionsRepo) Get(ctx context.Context, userID, id string) (*domain.Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, user_id, post_id, predicted_engagement, confidence, method,
		       text_quality, timing_score, hashtag_score, format_score,
		       breakdown, actual_engagement, created_at
		FROM predictions
		WHERE id = $1 AND user_id = $2`

	p, err := scanPrediction(r.db.QueryRowxContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction: %w", err)
	}
	return p, nil
}

func (r *predictionsRepo) RecordOutcome(ctx context.Context, userID, id string, actual int) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Append-only: a recorded outcome is never corrected.
	res, err := r.db.ExecContext(ctx, `
		UPDATE predictions SET actual_engagement = $1
		WHERE id = $2 AND user_id = $3 AND actual_engagement IS NULL`,
		actual, id, userID)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM predictions WHERE id = $1 AND user_id = $2)`,
		id, userID).Scan(&exists); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrOutcomeRecorded
}

func (r *predictionsRepo) ListEvaluated(ctx context.Context, userID string) ([]domain.Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, user_id, post_id, predicted_engagement, confidence, method,
		       text_quality, timing_score, hashtag_score, format_score,
		       breakdown, actual_engagement, created_at
		FROM predictions
		WHERE user_id = $1 AND actual_engagement IS NOT NULL
		ORDER BY created_at DESC`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list evaluated predictions: %w", err)
	}
	defer rows.Close()

	var out []domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// rowScanner covers both *sqlx.Row and *sqlx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row rowScanner) (*domain.Prediction, error) {
	var (
		p         domain.Prediction
		postID    sql.NullString
		breakdown sql.NullString
		actual    sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &p.UserID, &postID, &p.PredictedEngagement, &p.Confidence, &p.Method,
		&p.Factors.TextQuality, &p.Factors.TimingScore, &p.Factors.HashtagScore, &p.Factors.FormatScore,
		&breakdown, &actual, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.PostID = postID.String
	p.Breakdown = breakdown.String
	if actual.Valid {
		v := int(actual.Int64)
		p.ActualEngagement = &v
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
