// Package sqlite implements the persistence gateway on an embedded
// SQLite database (pure-Go modernc driver, no cgo). It backs single-node
// deployments and local development; production uses the postgres
// package.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/postpulse/engage/internal/domain"
	"github.com/postpulse/engage/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	post_id              TEXT,
	predicted_engagement INTEGER NOT NULL,
	confidence           REAL NOT NULL,
	method               TEXT NOT NULL,
	text_quality         INTEGER NOT NULL,
	timing_score         INTEGER NOT NULL,
	hashtag_score        INTEGER NOT NULL,
	format_score         INTEGER NOT NULL,
	breakdown            TEXT,
	actual_engagement    INTEGER,
	created_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_user ON predictions (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS timing_suggestions (
	id                    TEXT PRIMARY KEY,
	user_id               TEXT NOT NULL,
	suggested_hour        INTEGER NOT NULL,
	suggested_day_of_week INTEGER NOT NULL,
	suggested_date        TEXT NOT NULL,
	predicted_engagement  INTEGER NOT NULL,
	confidence            REAL NOT NULL,
	reason                TEXT NOT NULL,
	created_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS historical_posts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	text       TEXT NOT NULL,
	engagement INTEGER,
	posted_at  TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_user ON historical_posts (user_id, posted_at DESC);
`

// Store implements all three gateway repositories on one SQLite handle.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The modernc driver serializes writes; one connection avoids lock
	// contention between concurrent requests.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Gateway returns the store wired as a persistence gateway.
func (s *Store) Gateway() store.Gateway {
	return store.Gateway{Predictions: s, Timing: s, History: s}
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database handle still answers; used by the health
// endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Create(ctx context.Context, p *domain.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO predictions (
			id, user_id, post_id, predicted_engagement, confidence, method,
			text_quality, timing_score, hashtag_score, format_score,
			breakdown, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.PostID, p.PredictedEngagement, p.Confidence, p.Method,
		p.Factors.TextQuality, p.Factors.TimingScore, p.Factors.HashtagScore, p.Factors.FormatScore,
		p.Breakdown, fmtTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID, id string) (*domain.Prediction, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, user_id, post_id, predicted_engagement, confidence, method,
		       text_quality, timing_score, hashtag_score, format_score,
		       breakdown, actual_engagement, created_at
		FROM predictions
		WHERE id = ? AND user_id = ?`, id, userID)

	p, err := scanPrediction(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction: %w", err)
	}
	return p, nil
}

func (s *Store) RecordOutcome(ctx context.Context, userID, id string, actual int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE predictions SET actual_engagement = ?
		WHERE id = ? AND user_id = ? AND actual_engagement IS NULL`,
		actual, id, userID)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	} else if affected == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM predictions WHERE id = ? AND user_id = ?)`,
		id, userID).Scan(&exists); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrOutcomeRecorded
}

func (s *Store) ListEvaluated(ctx context.Context, userID string) ([]domain.Prediction, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, user_id, post_id, predicted_engagement, confidence, method,
		       text_quality, timing_score, hashtag_score, format_score,
		       breakdown, actual_engagement, created_at
		FROM predictions
		WHERE user_id = ? AND actual_engagement IS NOT NULL
		ORDER BY created_at DESC`, userID)
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

func (s *Store) SaveSuggestions(ctx context.Context, userID string, slots []domain.TimingSlot) error {
	if len(slots) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin timing batch: %w", err)
	}
	defer tx.Rollback()

	now := fmtTime(time.Now().UTC())
	for _, slot := range slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO timing_suggestions (
				id, user_id, suggested_hour, suggested_day_of_week, suggested_date,
				predicted_engagement, confidence, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), userID, slot.Hour, slot.DayOfWeek, fmtTime(slot.Date),
			slot.PredictedEngagement, slot.Confidence, slot.Reason, now); err != nil {
			return fmt.Errorf("insert timing suggestion: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit timing batch: %w", err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, userID string, post domain.HistoricalPost) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history insert: %w", err)
	}
	defer tx.Rollback()

	var engagement interface{}
	if post.Engagement != nil {
		engagement = *post.Engagement
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO historical_posts (id, user_id, text, engagement, posted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, post.Text, engagement,
		fmtTime(post.PostedAt), fmtTime(time.Now().UTC())); err != nil {
		return fmt.Errorf("insert historical post: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM historical_posts
		WHERE id IN (
			SELECT id FROM historical_posts
			WHERE user_id = ?
			ORDER BY posted_at DESC
			LIMIT -1 OFFSET ?)`,
		userID, store.HistoryRetention); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history insert: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]domain.HistoricalPost, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT text, engagement, posted_at
		FROM historical_posts
		WHERE user_id = ?
		ORDER BY posted_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoricalPost
	for rows.Next() {
		var (
			p          domain.HistoricalPost
			engagement sql.NullInt64
			postedAt   string
		)
		if err := rows.Scan(&p.Text, &engagement, &postedAt); err != nil {
			return nil, fmt.Errorf("scan historical post: %w", err)
		}
		if engagement.Valid {
			v := int(engagement.Int64)
			p.Engagement = &v
		}
		if p.PostedAt, err = parseTime(postedAt); err != nil {
			return nil, fmt.Errorf("scan historical post: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM historical_posts
		WHERE id IN (
			SELECT id FROM (
				SELECT id, row_number() OVER (PARTITION BY user_id ORDER BY posted_at DESC) AS rn
				FROM historical_posts) ranked
			WHERE rn > ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row rowScanner) (*domain.Prediction, error) {
	var (
		p         domain.Prediction
		postID    sql.NullString
		breakdown sql.NullString
		actual    sql.NullInt64
		createdAt string
	)
	err := row.Scan(
		&p.ID, &p.UserID, &postID, &p.PredictedEngagement, &p.Confidence, &p.Method,
		&p.Factors.TextQuality, &p.Factors.TimingScore, &p.Factors.HashtagScore, &p.Factors.FormatScore,
		&breakdown, &actual, &createdAt)
	if err != nil {
		return nil, err
	}
	p.PostID = postID.String
	p.Breakdown = breakdown.String
	if actual.Valid {
		v := int(actual.Int64)
		p.ActualEngagement = &v
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Times are stored as fixed-width RFC 3339 text (nine fraction digits)
// so lexical ORDER BY matches chronological order within a second too;
// RFC3339Nano trims trailing zeros and breaks that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
