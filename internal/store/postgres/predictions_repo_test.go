package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/engage/internal/domain"
	"github.com/postpulse/engage/internal/store"
)

func newMockRepo(t *testing.T) (store.PredictionRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewPredictionsRepo(db, 5*time.Second), mock
}

func predictionColumns() []string {
	return []string{
		"id", "user_id", "post_id", "predicted_engagement", "confidence", "method",
		"text_quality", "timing_score", "hashtag_score", "format_score",
		"breakdown", "actual_engagement", "created_at",
	}
}

func TestCreate_AssignsIDAndInserts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO predictions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &domain.Prediction{
		UserID:              "u1",
		PredictedEngagement: 74,
		Confidence:          0.6,
		Method:              domain.MethodRegression,
	}
	require.NoError(t, repo.Create(context.Background(), p))

	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_MapsRowToPrediction(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM predictions`).
		WithArgs("p1", "u1").
		WillReturnRows(sqlmock.NewRows(predictionColumns()).
			AddRow("p1", "u1", nil, 78, 0.82, "hybrid", 65, 83, 90, 82, "good timing", nil, created))

	got, err := repo.Get(context.Background(), "u1", "p1")
	require.NoError(t, err)

	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, domain.MethodHybrid, got.Method)
	assert.Equal(t, 78, got.PredictedEngagement)
	assert.Equal(t, domain.Factors{TextQuality: 65, TimingScore: 83, HashtagScore: 90, FormatScore: 82}, got.Factors)
	assert.Equal(t, "good timing", got.Breakdown)
	assert.Nil(t, got.ActualEngagement)
	assert.Equal(t, created, got.CreatedAt)
}

func TestGet_NoRowsMapsToNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM predictions`).
		WithArgs("missing", "u1").
		WillReturnRows(sqlmock.NewRows(predictionColumns()))

	_, err := repo.Get(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordOutcome_UpdatesOpenPrediction(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE predictions SET actual_engagement`).
		WithArgs(64, "p1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordOutcome(context.Background(), "u1", "p1", 64))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcome_AlreadyEvaluated(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE predictions SET actual_engagement`).
		WithArgs(64, "p1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("p1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.RecordOutcome(context.Background(), "u1", "p1", 64)
	assert.ErrorIs(t, err, store.ErrOutcomeRecorded)
}

func TestRecordOutcome_UnknownID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE predictions SET actual_engagement`).
		WithArgs(64, "missing", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("missing", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.RecordOutcome(context.Background(), "u1", "missing", 64)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListEvaluated_ScansAllRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM predictions`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(predictionColumns()).
			AddRow("p2", "u1", nil, 80, 0.7, "hybrid", 70, 80, 85, 82, nil, 75, created).
			AddRow("p1", "u1", nil, 60, 0.55, "regression", 55, 60, 70, 65, nil, 58, created.Add(-time.Hour)))

	out, err := repo.ListEvaluated(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "p2", out[0].ID)
	require.NotNil(t, out[0].ActualEngagement)
	assert.Equal(t, 75, *out[0].ActualEngagement)
	assert.Equal(t, domain.MethodRegression, out[1].Method)
}
