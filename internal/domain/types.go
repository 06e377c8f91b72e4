// Package domain holds the canonical types shared by the engagement
// prediction and timing recommendation pipeline.
package domain

import "time"

// Method identifies which estimation path produced a prediction.
type Method string

const (
	// MethodRegression is the deterministic rule-based path.
	MethodRegression Method = "regression"
	// MethodAI is the AI-estimate-only path.
	MethodAI Method = "ai"
	// MethodHybrid blends the rule-based aggregate with the AI estimate.
	MethodHybrid Method = "hybrid"
)

// Methods lists every prediction method, in stable order. Accuracy
// breakdowns iterate this so every method appears even with zero samples.
func Methods() []Method {
	return []Method{MethodRegression, MethodAI, MethodHybrid}
}

// EngagementFeatures is the normalized input to scoring. Values outside
// platform limits are clamped by the feature normalizer, never rejected.
type EngagementFeatures struct {
	Text      string   `json:"text"`
	Hashtags  []string `json:"hashtags"`
	Hour      int      `json:"hour"`        // 0-23, target posting hour
	DayOfWeek int      `json:"day_of_week"` // 0-6, Sunday = 0
	Format    string   `json:"format"`      // categorical format tag
	Purpose   string   `json:"purpose,omitempty"`
	Trend     string   `json:"trend,omitempty"`
}

// Factors carries the four named sub-scores, each bounded to [0,100].
type Factors struct {
	TextQuality  int `json:"text_quality" db:"text_quality"`
	TimingScore  int `json:"timing_score" db:"timing_score"`
	HashtagScore int `json:"hashtag_score" db:"hashtag_score"`
	FormatScore  int `json:"format_score" db:"format_score"`
}

// Prediction is the output of a prediction request. It is append-only:
// the only mutation after creation is attaching ActualEngagement once an
// outcome is observed.
type Prediction struct {
	ID                  string    `json:"id" db:"id"`
	UserID              string    `json:"user_id" db:"user_id"`
	PostID              string    `json:"post_id,omitempty" db:"post_id"`
	PredictedEngagement int       `json:"predicted_engagement" db:"predicted_engagement"`
	Confidence          float64   `json:"confidence" db:"confidence"`
	Method              Method    `json:"method" db:"method"`
	Factors             Factors   `json:"factors"`
	Breakdown           string    `json:"breakdown,omitempty" db:"breakdown"` // AI rationale, present only when an estimate contributed
	ActualEngagement    *int      `json:"actual_engagement,omitempty" db:"actual_engagement"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// HistoricalPost is a past post with its measured engagement. Engagement
// is nil until the posting subsystem has measured it.
type HistoricalPost struct {
	Text       string    `json:"text" db:"text"`
	Engagement *int      `json:"engagement,omitempty" db:"engagement"`
	PostedAt   time.Time `json:"posted_at" db:"posted_at"`
}

// TimingSlot is one ranked candidate publishing slot. Slots are computed
// fresh per request; the persisted top-N records are immutable.
type TimingSlot struct {
	Hour                int       `json:"hour" db:"suggested_hour"`
	DayOfWeek           int       `json:"day_of_week" db:"suggested_day_of_week"`
	Date                time.Time `json:"date" db:"suggested_date"` // next occurrence of (hour, day)
	PredictedEngagement int       `json:"predicted_engagement" db:"predicted_engagement"`
	Confidence          float64   `json:"confidence" db:"confidence"`
	Reason              string    `json:"reason" db:"reason"`
}

// MethodAccuracy is the running accuracy for one prediction method.
type MethodAccuracy struct {
	Count       int     `json:"count"`
	AvgAccuracy float64 `json:"avg_accuracy"`
}

// AccuracySummary aggregates evaluated predictions for one user.
type AccuracySummary struct {
	AverageAccuracy     float64                   `json:"average_accuracy"` // rounded to 1 decimal
	TotalPredictions    int                       `json:"total_predictions"`
	AccuratePredictions int                       `json:"accurate_predictions"` // accuracy >= 70
	MethodBreakdown     map[Method]MethodAccuracy `json:"method_breakdown"`
}

// Accuracy scores how close a prediction came to the observed outcome,
// clamped so a wild miss scores 0 rather than going negative.
func Accuracy(predicted, actual int) int {
	diff := predicted - actual
	if diff < 0 {
		diff = -diff
	}
	if diff >= 100 {
		return 0
	}
	return 100 - diff
}

// ClampScore bounds an engagement-style score to [0,100].
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampConfidence bounds a confidence value to [0,1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NextOccurrence returns the next time after ref matching the given
// hour and day-of-week, at the top of the hour in ref's location. A slot
// matching ref's current hour exactly is pushed a full week out so the
// suggestion is always actionable.
func NextOccurrence(ref time.Time, hour, dayOfWeek int) time.Time {
	t := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, 0, 0, 0, ref.Location())
	daysAhead := (dayOfWeek - int(ref.Weekday()) + 7) % 7
	t = t.AddDate(0, 0, daysAhead)
	if !t.After(ref) {
		t = t.AddDate(0, 0, 7)
	}
	return t
}
