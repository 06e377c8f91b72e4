package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/postpulse/engage/internal/app"
	"github.com/postpulse/engage/internal/domain"
	"github.com/postpulse/engage/internal/store"
)

// userHeader carries the authenticated user id from the fronting layer.
const userHeader = "X-User-ID"

// Handlers translates HTTP requests into engine calls.
type Handlers struct {
	engine *app.Engine
}

// NewHandlers creates the handler set.
func NewHandlers(engine *app.Engine) *Handlers {
	return &Handlers{engine: engine}
}

type predictionRequest struct {
	Features domain.EngagementFeatures `json:"features"`
	PostID   string                    `json:"post_id,omitempty"`
	UseAI    bool                      `json:"use_ai"`
	AIOnly   bool                      `json:"ai_only"`
}

// CreatePrediction handles POST /v1/predictions.
func (h *Handlers) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	var req predictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pred, err := h.engine.Predict(r.Context(), app.PredictRequest{
		UserID:   userID,
		PostID:   req.PostID,
		Features: req.Features,
		UseAI:    req.UseAI,
		AIOnly:   req.AIOnly,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pred)
}

// RecommendTiming handles GET /v1/timing.
func (h *Handlers) RecommendTiming(w http.ResponseWriter, r *http.Request) {
	slots, err := h.engine.RecommendTiming(r.Context(), r.Header.Get(userHeader))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"slots": slots})
}

type outcomeRequest struct {
	ActualEngagement int `json:"actual_engagement"`
}

// RecordOutcome handles POST /v1/predictions/{id}/outcome.
func (h *Handlers) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	eval, err := h.engine.RecordOutcome(r.Context(), r.Header.Get(userHeader), mux.Vars(r)["id"], req.ActualEngagement)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// AccuracySummary handles GET /v1/accuracy.
func (h *Handlers) AccuracySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.AccuracySummary(r.Context(), r.Header.Get(userHeader))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type historyRequest struct {
	Text       string    `json:"text"`
	Engagement *int      `json:"engagement,omitempty"`
	PostedAt   time.Time `json:"posted_at"`
}

// AddHistory handles POST /v1/history.
func (h *Handlers) AddHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PostedAt.IsZero() {
		req.PostedAt = time.Now().UTC()
	}

	err := h.engine.AddHistoricalPost(r.Context(), r.Header.Get(userHeader), domain.HistoricalPost{
		Text:       req.Text,
		Engagement: req.Engagement,
		PostedAt:   req.PostedAt,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrMissingUser):
		writeError(w, http.StatusUnauthorized, "missing user identity")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "prediction not found")
	case errors.Is(err, store.ErrOutcomeRecorded):
		writeError(w, http.StatusConflict, "outcome already recorded")
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}
