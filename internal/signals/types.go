// Package signals fetches and normalizes external context feeds (market
// activity, news trends) into qualitative posting recommendations. Each
// source is independently toggled and independently timed out; a failed
// source costs its signal, never the request.
package signals

import (
	"context"
	"time"
)

// Sentiment is the three-state market mood derived from net price change.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// MarketStatus is the four-state trading-session state derived from the
// current time against fixed open/close boundaries in the reference
// timezone (America/New_York).
type MarketStatus string

const (
	MarketPreMarket  MarketStatus = "pre_market"
	MarketOpen       MarketStatus = "open"
	MarketAfterHours MarketStatus = "after_hours"
	MarketClosed     MarketStatus = "closed"
)

// MarketSnapshot is the normalized market-activity signal.
type MarketSnapshot struct {
	ActivityLevel int          `json:"activity_level"` // 0-100, from intraday volume dispersion
	Volatility    int          `json:"volatility"`     // 0-100, from price-change dispersion
	Sentiment     Sentiment    `json:"sentiment"`
	Status        MarketStatus `json:"status"`
	AsOf          time.Time    `json:"as_of"`
}

// CategoryCount is one entry of the news category histogram.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// NewsSnapshot is the normalized news/trend signal.
type NewsSnapshot struct {
	Topics     []string        `json:"topics"`     // top-N headline-derived topics
	Categories []CategoryCount `json:"categories"` // frequency-ranked, at most 5
	AsOf       time.Time       `json:"as_of"`
}

// Payload is one source's optional normalized contribution. A source fills
// only the fields it knows about; the aggregator merges payloads without
// caring which source produced which field.
type Payload struct {
	Market *MarketSnapshot `json:"market,omitempty"`
	News   *NewsSnapshot   `json:"news,omitempty"`
}

// SourceInfo describes a signal source for logging and cache keying.
type SourceInfo struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	CacheTTL time.Duration `json:"cache_ttl"`
}

// Source is one pluggable external feed. Adding a source never requires
// touching the aggregator's merge logic or the timing recommender.
type Source interface {
	Info() SourceInfo
	Fetch(ctx context.Context) (*Payload, error)
}

// SourceResult records one source's outcome within a bundle, keyed by
// the source id for per-source instrumentation.
type SourceResult struct {
	ID string `json:"id"`
	OK bool   `json:"ok"`
}

// Bundle is the merged output of one aggregation pass.
type Bundle struct {
	Market           *MarketSnapshot `json:"market,omitempty"`
	News             *NewsSnapshot   `json:"news,omitempty"`
	Recommendations  []string        `json:"recommendations"`
	Sources          []SourceResult  `json:"sources,omitempty"`
	SourcesQueried   int             `json:"sources_queried"`
	SourcesSucceeded int             `json:"sources_succeeded"`
	FetchedAt        time.Time       `json:"fetched_at"`
}
