package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Bar is one intraday OHLCV bar from the market feed.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// MarketConfig configures the market-activity source. An empty APIKey
// disables the source entirely (not an error).
type MarketConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Symbol    string        `yaml:"symbol"`     // reference index symbol, default SPY
	StreamURL string        `yaml:"stream_url"` // optional websocket ticker feed
	Timeout   time.Duration `yaml:"timeout"`    // default 6s
	CacheTTL  time.Duration `yaml:"cache_ttl"`  // default 5m
}

// Thresholds for sentiment classification, in percent net change.
const sentimentBand = 0.25

// MarketSource derives a MarketSnapshot from intraday bars. Bars come
// from a live websocket stream when one is attached and fresh, otherwise
// from an HTTP fetch.
type MarketSource struct {
	cfg     MarketConfig
	client  *http.Client
	limiter *rate.Limiter
	stream  *MarketStream
	loc     *time.Location
	now     func() time.Time
}

// NewMarketSource creates the market-activity source. stream may be nil.
func NewMarketSource(cfg MarketConfig, stream *MarketStream) *MarketSource {
	if cfg.Symbol == "" {
		cfg.Symbol = "SPY"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Fixed offset keeps status computation sane if tzdata is absent.
		loc = time.FixedZone("EST", -5*60*60)
		log.Warn().Err(err).Msg("tzdata unavailable, using fixed EST offset for market hours")
	}
	return &MarketSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(1), 2),
		stream:  stream,
		loc:     loc,
		now:     time.Now,
	}
}

func (m *MarketSource) Info() SourceInfo {
	return SourceInfo{ID: "market", Name: "Market Activity", CacheTTL: m.cfg.CacheTTL}
}

// Fetch obtains bars and normalizes them into a market snapshot.
func (m *MarketSource) Fetch(ctx context.Context) (*Payload, error) {
	bars, err := m.bars(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := NormalizeMarket(bars, m.now().In(m.loc))
	if err != nil {
		return nil, err
	}
	return &Payload{Market: snap}, nil
}

func (m *MarketSource) bars(ctx context.Context) ([]Bar, error) {
	if m.stream != nil {
		if bars, ok := m.stream.Snapshot(m.cfg.CacheTTL); ok {
			return bars, nil
		}
	}
	return m.fetchBars(ctx)
}

func (m *MarketSource) fetchBars(ctx context.Context) ([]Bar, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("market rate limit: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/bars?symbol=%s&interval=5min&apikey=%s",
		m.cfg.BaseURL, url.QueryEscape(m.cfg.Symbol), url.QueryEscape(m.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build market request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market request: unexpected status %d", resp.StatusCode)
	}

	var decoded struct {
		Bars []Bar `json:"bars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode market response: %w", err)
	}
	return decoded.Bars, nil
}

// NormalizeMarket converts intraday bars into the bounded market snapshot.
// now must already be in the reference timezone.
func NormalizeMarket(bars []Bar, now time.Time) (*MarketSnapshot, error) {
	if len(bars) < 2 {
		return nil, fmt.Errorf("market normalization needs at least 2 bars, got %d", len(bars))
	}

	volumes := make([]float64, 0, len(bars))
	changes := make([]float64, 0, len(bars))
	for _, b := range bars {
		volumes = append(volumes, b.Volume)
		if b.Open > 0 {
			changes = append(changes, (b.Close-b.Open)/b.Open*100)
		}
	}

	// Activity from volume dispersion: coefficient of variation scaled so
	// a calm tape lands ~30 and a frantic one saturates at 100.
	activity := 0
	if mean := meanOf(volumes); mean > 0 {
		activity = int(math.Round(stddevOf(volumes) / mean * 100))
	}

	// Volatility from per-bar percent-change dispersion.
	volatility := int(math.Round(stddevOf(changes) * 100))

	first, last := bars[0], bars[len(bars)-1]
	sentiment := SentimentNeutral
	if first.Open > 0 {
		net := (last.Close - first.Open) / first.Open * 100
		switch {
		case net >= sentimentBand:
			sentiment = SentimentBullish
		case net <= -sentimentBand:
			sentiment = SentimentBearish
		}
	}

	return &MarketSnapshot{
		ActivityLevel: clamp100(activity),
		Volatility:    clamp100(volatility),
		Sentiment:     sentiment,
		Status:        MarketStatusAt(now),
		AsOf:          now,
	}, nil
}

// MarketStatusAt maps a reference-timezone instant to the trading session
// state. Boundaries: pre-market 04:00-09:30, open 09:30-16:00,
// after-hours 16:00-20:00, closed otherwise and on weekends.
func MarketStatusAt(now time.Time) MarketStatus {
	wd := now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return MarketClosed
	}
	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= 4*60 && minutes < 9*60+30:
		return MarketPreMarket
	case minutes >= 9*60+30 && minutes < 16*60:
		return MarketOpen
	case minutes >= 16*60 && minutes < 20*60:
		return MarketAfterHours
	default:
		return MarketClosed
	}
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddevOf(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := meanOf(vals)
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func clamp100(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
