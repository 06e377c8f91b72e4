package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barsWith(closes []float64, volumes []float64) []Bar {
	bars := make([]Bar, len(closes))
	ts := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	for i := range bars {
		open := closes[i]
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = Bar{
			Timestamp: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			Close:     closes[i],
			Volume:    volumes[i],
		}
	}
	return bars
}

func TestNormalizeMarket_RequiresTwoBars(t *testing.T) {
	_, err := NormalizeMarket(nil, time.Now())
	assert.Error(t, err)

	_, err = NormalizeMarket([]Bar{{Open: 100, Close: 101, Volume: 10}}, time.Now())
	assert.Error(t, err)
}

func TestNormalizeMarket_SentimentFromNetChange(t *testing.T) {
	now := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC) // Tuesday, market open

	cases := []struct {
		name   string
		closes []float64
		want   Sentiment
	}{
		{"bullish above band", []float64{100, 100.2, 100.5}, SentimentBullish},
		{"bearish below band", []float64{100, 99.8, 99.5}, SentimentBearish},
		{"flat inside band", []float64{100, 100.1, 100.05}, SentimentNeutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := NormalizeMarket(barsWith(tc.closes, []float64{10, 10, 10}), now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, snap.Sentiment)
		})
	}
}

func TestNormalizeMarket_ActivityTracksVolumeDispersion(t *testing.T) {
	now := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)

	calm, err := NormalizeMarket(barsWith([]float64{100, 100, 100}, []float64{50, 50, 50}), now)
	require.NoError(t, err)
	frantic, err := NormalizeMarket(barsWith([]float64{100, 100, 100}, []float64{5, 200, 10}), now)
	require.NoError(t, err)

	assert.Equal(t, 0, calm.ActivityLevel, "uniform volume has zero dispersion")
	assert.Greater(t, frantic.ActivityLevel, calm.ActivityLevel)
	assert.LessOrEqual(t, frantic.ActivityLevel, 100)
}

func TestNormalizeMarket_BoundsHold(t *testing.T) {
	now := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)

	// Wild swings that would overflow both measures without clamping.
	snap, err := NormalizeMarket(barsWith([]float64{100, 300, 20, 500}, []float64{1, 9999, 2, 8888}), now)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, snap.ActivityLevel, 0)
	assert.LessOrEqual(t, snap.ActivityLevel, 100)
	assert.GreaterOrEqual(t, snap.Volatility, 0)
	assert.LessOrEqual(t, snap.Volatility, 100)
}

func TestMarketStatusAt_SessionBoundaries(t *testing.T) {
	// All instants on Tuesday 2026-03-03 unless noted.
	day := func(hour, min int) time.Time {
		return time.Date(2026, 3, 3, hour, min, 0, 0, time.UTC)
	}

	cases := []struct {
		name string
		at   time.Time
		want MarketStatus
	}{
		{"overnight", day(2, 0), MarketClosed},
		{"pre-market start", day(4, 0), MarketPreMarket},
		{"last pre-market minute", day(9, 29), MarketPreMarket},
		{"opening bell", day(9, 30), MarketOpen},
		{"mid-session", day(13, 0), MarketOpen},
		{"closing bell", day(16, 0), MarketAfterHours},
		{"last after-hours minute", day(19, 59), MarketAfterHours},
		{"evening close", day(20, 0), MarketClosed},
		{"saturday midday", time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC), MarketClosed},
		{"sunday midday", time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC), MarketClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MarketStatusAt(tc.at))
		})
	}
}
