// Package postgres implements the persistence gateway on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema is applied idempotently at startup; the deployment owns real
// migrations, this keeps dev databases usable out of the box.
const Schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id                   UUID PRIMARY KEY,
	user_id              TEXT NOT NULL,
	post_id              TEXT,
	predicted_engagement INTEGER NOT NULL,
	confidence           DOUBLE PRECISION NOT NULL,
	method               TEXT NOT NULL,
	text_quality         INTEGER NOT NULL,
	timing_score         INTEGER NOT NULL,
	hashtag_score        INTEGER NOT NULL,
	format_score         INTEGER NOT NULL,
	breakdown            TEXT,
	actual_engagement    INTEGER,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_predictions_user ON predictions (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS timing_suggestions (
	id                    UUID PRIMARY KEY,
	user_id               TEXT NOT NULL,
	suggested_hour        INTEGER NOT NULL,
	suggested_day_of_week INTEGER NOT NULL,
	suggested_date        TIMESTAMPTZ NOT NULL,
	predicted_engagement  INTEGER NOT NULL,
	confidence            DOUBLE PRECISION NOT NULL,
	reason                TEXT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_timing_user ON timing_suggestions (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS historical_posts (
	id         UUID PRIMARY KEY,
	user_id    TEXT NOT NULL,
	text       TEXT NOT NULL,
	engagement INTEGER,
	posted_at  TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_history_user ON historical_posts (user_id, posted_at DESC);
`

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
