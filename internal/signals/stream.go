package signals

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// maxStreamBars bounds the rolling bar window kept in memory; 78 five-
// minute bars cover one regular trading session.
const maxStreamBars = 78

// MarketStream maintains a rolling window of intraday bars from a
// websocket ticker feed so the market source can skip HTTP fetches while
// the stream is healthy. The stream is optional infrastructure: when it
// is absent or stale the source falls back to HTTP.
type MarketStream struct {
	url    string
	dialer *websocket.Dialer

	mu         sync.RWMutex
	bars       []Bar
	lastUpdate time.Time
}

// NewMarketStream creates a stream for the given websocket URL.
func NewMarketStream(url string) *MarketStream {
	return &MarketStream{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run connects and consumes bar messages until ctx is cancelled,
// reconnecting with backoff after failures. Intended to run in its own
// goroutine.
func (s *MarketStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("url", s.url).Dur("backoff", backoff).Msg("market stream disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *MarketStream) consume(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info().Str("url", s.url).Msg("market stream connected")

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var bar Bar
		if err := json.Unmarshal(msg, &bar); err != nil {
			log.Debug().Err(err).Msg("market stream: skipping unparseable message")
			continue
		}
		s.push(bar)
	}
}

func (s *MarketStream) push(bar Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = append(s.bars, bar)
	if len(s.bars) > maxStreamBars {
		s.bars = s.bars[len(s.bars)-maxStreamBars:]
	}
	s.lastUpdate = time.Now()
}

// Snapshot returns a copy of the current bar window if it was updated
// within maxAge and holds enough bars to normalize.
func (s *MarketStream) Snapshot(maxAge time.Duration) ([]Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) < 2 || time.Since(s.lastUpdate) > maxAge {
		return nil, false
	}
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out, true
}
