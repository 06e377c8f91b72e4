package timing

import (
	"fmt"
	"math"
	"time"

	"github.com/postpulse/engage/internal/domain"
	"github.com/postpulse/engage/internal/signals"
)

// RecommenderConfig tunes slot ranking.
type RecommenderConfig struct {
	MaxSlots           int     `yaml:"max_slots"`           // default 5
	FallbackConfidence float64 `yaml:"fallback_confidence"` // default 0.30
	CorroborationBump  float64 `yaml:"corroboration_bump"`  // default 0.10
}

// DefaultRecommenderConfig returns production ranking settings.
func DefaultRecommenderConfig() RecommenderConfig {
	return RecommenderConfig{
		MaxSlots:           5,
		FallbackConfidence: 0.30,
		CorroborationBump:  0.10,
	}
}

// fallbackSlot is one entry of the fixed default slot list used when a
// user has no measured history: mid-morning, lunch, and evening weekday
// slots in conventional-engagement order.
type fallbackSlot struct {
	hour, day, engagement int
}

var fallbackSlots = []fallbackSlot{
	{9, 2, 60},  // Tuesday morning
	{12, 3, 58}, // Wednesday lunch
	{17, 4, 56}, // Thursday commute
	{10, 1, 54}, // Monday mid-morning
	{19, 0, 52}, // Sunday evening
}

// Recommender merges historical bucket rankings with external signal
// recommendations into the final ranked slot list. The historical ranking
// determines slot order and base scores; signals only annotate reasons
// and bump confidence where they corroborate a slot.
type Recommender struct {
	cfg RecommenderConfig
}

// NewRecommender creates a timing recommender.
func NewRecommender(cfg RecommenderConfig) *Recommender {
	def := DefaultRecommenderConfig()
	if cfg.MaxSlots <= 0 {
		cfg.MaxSlots = def.MaxSlots
	}
	if cfg.FallbackConfidence <= 0 {
		cfg.FallbackConfidence = def.FallbackConfidence
	}
	if cfg.CorroborationBump <= 0 {
		cfg.CorroborationBump = def.CorroborationBump
	}
	return &Recommender{cfg: cfg}
}

// Recommend produces a non-empty ranked slot list. bundle may be nil when
// no external source is configured.
func (r *Recommender) Recommend(buckets []Bucket, bundle *signals.Bundle, now time.Time) []domain.TimingSlot {
	if len(buckets) == 0 {
		return r.fallback(bundle, now)
	}

	if len(buckets) > r.cfg.MaxSlots {
		buckets = buckets[:r.cfg.MaxSlots]
	}

	slots := make([]domain.TimingSlot, 0, len(buckets))
	for _, b := range buckets {
		slot := domain.TimingSlot{
			Hour:                b.Hour,
			DayOfWeek:           b.DayOfWeek,
			Date:                domain.NextOccurrence(now, b.Hour, b.DayOfWeek),
			PredictedEngagement: domain.ClampScore(int(math.Round(b.MeanEngagement))),
			Confidence:          sampleConfidence(b.Samples),
			Reason: fmt.Sprintf("averaged %.0f%% engagement across %d past %s at this hour",
				b.MeanEngagement, b.Samples, plural(b.Samples, "post", "posts")),
		}
		r.corroborate(&slot, bundle)
		slots = append(slots, slot)
	}
	return slots
}

// fallback returns the fixed default slot list at low confidence so the
// caller always receives a non-empty ranking.
func (r *Recommender) fallback(bundle *signals.Bundle, now time.Time) []domain.TimingSlot {
	n := len(fallbackSlots)
	if n > r.cfg.MaxSlots {
		n = r.cfg.MaxSlots
	}
	slots := make([]domain.TimingSlot, 0, n)
	for _, fs := range fallbackSlots[:n] {
		reason := "general best-practice slot (no measured posting history yet)"
		if bundle != nil && len(bundle.Recommendations) > 0 {
			reason += "; " + bundle.Recommendations[0]
		}
		slots = append(slots, domain.TimingSlot{
			Hour:                fs.hour,
			DayOfWeek:           fs.day,
			Date:                domain.NextOccurrence(now, fs.hour, fs.day),
			PredictedEngagement: fs.engagement,
			Confidence:          r.cfg.FallbackConfidence,
			Reason:              reason,
		})
	}
	return slots
}

// corroborate attaches matching signal recommendations to a slot's reason
// and bumps confidence when signals agree with the slot's historical
// strength. The bump is capped at 1.0.
func (r *Recommender) corroborate(slot *domain.TimingSlot, bundle *signals.Bundle) {
	if bundle == nil {
		return
	}

	bumped := false
	if m := bundle.Market; m != nil && m.ActivityLevel >= 70 && insideMarketHours(slot.Hour, slot.DayOfWeek) {
		slot.Reason += "; market highly active in this window"
		bumped = true
	}
	if n := bundle.News; n != nil && len(n.Topics) > 0 && !bumped {
		// Trending topics corroborate any near-term slot, more weakly.
		slot.Reason += fmt.Sprintf("; live topics to ride: %s", n.Topics[0])
	}
	if bumped {
		slot.Confidence = domain.ClampConfidence(slot.Confidence + r.cfg.CorroborationBump)
	}
}

// insideMarketHours reports whether a slot falls in the weekday trading
// window (09:00-16:00 in the reference timezone).
func insideMarketHours(hour, day int) bool {
	return day >= 1 && day <= 5 && hour >= 9 && hour < 16
}

// sampleConfidence grows with bucket evidence: three samples are moderate
// proof, ten or more approach the cap.
func sampleConfidence(samples int) float64 {
	conf := 0.35 + 0.05*float64(samples)
	if conf > 0.90 {
		conf = 0.90
	}
	return conf
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
