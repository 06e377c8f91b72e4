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

// historyRepo implements store.HistoryRepo on PostgreSQL.
type historyRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHistoryRepo creates a PostgreSQL posting-history repository.
func NewHistoryRepo(db *sqlx.DB, timeout time.Duration) store.HistoryRepo {
	return &historyRepo{db: db, timeout: timeout}
}

// Add inserts the post and trims the user's history to the retention cap,
// deleting the oldest surplus rows.
func (r *historyRepo) Add(ctx context.Context, userID string, post domain.HistoricalPost) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history insert: %w", err)
	}
	defer tx.Rollback()

	var engagement sql.NullInt64
	if post.Engagement != nil {
		engagement = sql.NullInt64{Int64: int64(*post.Engagement), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO historical_posts (id, user_id, text, engagement, posted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), userID, post.Text, engagement, post.PostedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert historical post: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM historical_posts
		WHERE id IN (
			SELECT id FROM historical_posts
			WHERE user_id = $1
			ORDER BY posted_at DESC
			OFFSET $2)`,
		userID, store.HistoryRetention); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history insert: %w", err)
	}
	return nil
}

func (r *historyRepo) Recent(ctx context.Context, userID string, limit int) ([]domain.HistoricalPost, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT text, engagement, posted_at
		FROM historical_posts
		WHERE user_id = $1
		ORDER BY posted_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoricalPost
	for rows.Next() {
		var (
			p          domain.HistoricalPost
			engagement sql.NullInt64
		)
		if err := rows.Scan(&p.Text, &engagement, &p.PostedAt); err != nil {
			return nil, fmt.Errorf("scan historical post: %w", err)
		}
		if engagement.Valid {
			v := int(engagement.Int64)
			p.Engagement = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Prune trims every user's history to keep rows; used by the nightly
// maintenance job as a backstop to per-insert trimming.
func (r *historyRepo) Prune(ctx context.Context, keep int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM historical_posts
		WHERE id IN (
			SELECT id FROM (
				SELECT id, row_number() OVER (PARTITION BY user_id ORDER BY posted_at DESC) AS rn
				FROM historical_posts) ranked
			WHERE rn > $1)`,
		keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
