package signals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/postpulse/engage/internal/cache"
)

// Activity / volatility thresholds for recommendation rules.
const (
	highActivityThreshold   = 70
	highVolatilityThreshold = 70
)

// AggregatorConfig tunes the aggregation pass.
type AggregatorConfig struct {
	// SourceTimeout bounds each source fetch independently; one slow
	// source must not stall the others.
	SourceTimeout time.Duration `yaml:"source_timeout"` // default 8s
}

// DefaultAggregatorConfig returns production aggregation settings.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{SourceTimeout: 8 * time.Second}
}

// Aggregator fans out to the configured sources, accepts partial results,
// and derives an ordered list of qualitative recommendations using fixed
// threshold rules. It never fails a request: with every source down it
// returns an empty bundle.
type Aggregator struct {
	sources []Source
	cache   cache.Cache // optional
	cfg     AggregatorConfig
}

// NewAggregator creates a signal aggregator. payloadCache may be nil.
func NewAggregator(sources []Source, payloadCache cache.Cache, cfg AggregatorConfig) *Aggregator {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultAggregatorConfig().SourceTimeout
	}
	return &Aggregator{sources: sources, cache: payloadCache, cfg: cfg}
}

// Collect fetches every source concurrently and merges whatever succeeded.
func (a *Aggregator) Collect(ctx context.Context) *Bundle {
	bundle := &Bundle{
		Recommendations: []string{},
		SourcesQueried:  len(a.sources),
		FetchedAt:       time.Now(),
	}
	if len(a.sources) == 0 {
		return bundle
	}

	type result struct {
		info    SourceInfo
		payload *Payload
	}
	results := make(chan result, len(a.sources))

	for _, src := range a.sources {
		go func(src Source) {
			srcCtx, cancel := context.WithTimeout(ctx, a.cfg.SourceTimeout)
			defer cancel()
			results <- result{info: src.Info(), payload: a.fetchOne(srcCtx, src)}
		}(src)
	}

	for range a.sources {
		res := <-results
		bundle.Sources = append(bundle.Sources, SourceResult{ID: res.info.ID, OK: res.payload != nil})
		if res.payload == nil {
			continue
		}
		bundle.SourcesSucceeded++
		if res.payload.Market != nil {
			bundle.Market = res.payload.Market
		}
		if res.payload.News != nil {
			bundle.News = res.payload.News
		}
	}

	bundle.Recommendations = deriveRecommendations(bundle)
	return bundle
}

// fetchOne fetches a single source through the cache. Any failure is
// logged and swallowed; the source simply contributes nothing.
func (a *Aggregator) fetchOne(ctx context.Context, src Source) *Payload {
	info := src.Info()
	key := "signals:" + info.ID

	if a.cache != nil {
		var cached Payload
		if ok, err := a.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return &cached
		}
	}

	payload, err := src.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source", info.ID).Msg("signal source fetch failed, continuing without it")
		return nil
	}

	if a.cache != nil && payload != nil {
		if err := a.cache.SetJSON(ctx, key, payload, info.CacheTTL); err != nil {
			log.Debug().Err(err).Str("source", info.ID).Msg("signal payload cache write failed")
		}
	}
	return payload
}

// deriveRecommendations applies fixed threshold rules to the merged
// signals. Ordering is deterministic: market rules first, news rules last.
func deriveRecommendations(b *Bundle) []string {
	recs := []string{}

	if m := b.Market; m != nil {
		switch m.Status {
		case MarketOpen:
			recs = append(recs, "markets are open: business audiences are at their screens")
		case MarketPreMarket:
			recs = append(recs, "pre-market window: early finance readers are scanning feeds")
		case MarketAfterHours:
			recs = append(recs, "after-hours session: recap and analysis content lands well now")
		}
		if m.ActivityLevel >= highActivityThreshold {
			recs = append(recs, "market highly active: favor finance-adjacent content now")
		}
		if m.Volatility >= highVolatilityThreshold {
			recs = append(recs, "volatility elevated: time-sensitive commentary will travel")
		}
		switch m.Sentiment {
		case SentimentBullish:
			recs = append(recs, "market sentiment bullish: upbeat framing should resonate")
		case SentimentBearish:
			recs = append(recs, "market sentiment bearish: analytical, measured framing works better")
		}
	}

	if n := b.News; n != nil {
		if len(n.Topics) > 0 {
			recs = append(recs, fmt.Sprintf("trending now: %s; tie content to a live topic", strings.Join(n.Topics, ", ")))
		}
		if len(n.Categories) > 0 {
			recs = append(recs, fmt.Sprintf("news cycle leans %s; consider that angle", n.Categories[0].Category))
		}
	}

	return recs
}
