package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/postpulse/engage/internal/cache"
)

// Pinger reports whether a dependency answers.
type Pinger func(ctx context.Context) error

// HealthChecker reports dependency reachability. Degraded dependencies
// do not fail the endpoint: the engine keeps serving with reduced
// capability, and the payload says which parts are down.
type HealthChecker struct {
	store Pinger      // required
	cache cache.Cache // optional
}

// NewHealthChecker builds a checker; payloadCache may be nil.
func NewHealthChecker(storePing Pinger, payloadCache cache.Cache) *HealthChecker {
	return &HealthChecker{store: storePing, cache: payloadCache}
}

type healthStatus struct {
	Status    string            `json:"status"` // "ok" or "degraded"
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := healthStatus{
		Status:    "ok",
		Checks:    map[string]string{},
		Timestamp: time.Now().UTC(),
	}

	if h.store != nil {
		if err := h.store(ctx); err != nil {
			status.Checks["store"] = "down: " + err.Error()
			status.Status = "degraded"
		} else {
			status.Checks["store"] = "ok"
		}
	}

	if h.cache != nil {
		if h.cache.Healthy(ctx) {
			status.Checks["cache"] = "ok"
		} else {
			status.Checks["cache"] = "down"
			status.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}
