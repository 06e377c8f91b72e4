package signals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RequiresEnoughFreshBars(t *testing.T) {
	s := NewMarketStream("ws://unused")

	_, ok := s.Snapshot(time.Minute)
	assert.False(t, ok, "empty window")

	s.push(Bar{Close: 100, Volume: 10})
	_, ok = s.Snapshot(time.Minute)
	assert.False(t, ok, "a single bar cannot be normalized")

	s.push(Bar{Close: 101, Volume: 12})
	bars, ok := s.Snapshot(time.Minute)
	require.True(t, ok)
	assert.Len(t, bars, 2)
}

func TestSnapshot_StaleWindowRejected(t *testing.T) {
	s := NewMarketStream("ws://unused")
	s.push(Bar{Close: 100, Volume: 10})
	s.push(Bar{Close: 101, Volume: 12})

	_, ok := s.Snapshot(0)
	assert.False(t, ok)
}

func TestSnapshot_ReturnsCopy(t *testing.T) {
	s := NewMarketStream("ws://unused")
	s.push(Bar{Close: 100, Volume: 10})
	s.push(Bar{Close: 101, Volume: 12})

	bars, ok := s.Snapshot(time.Minute)
	require.True(t, ok)
	bars[0].Close = -1

	again, ok := s.Snapshot(time.Minute)
	require.True(t, ok)
	assert.Equal(t, 100.0, again[0].Close, "callers must not mutate the window")
}

func TestPush_WindowBounded(t *testing.T) {
	s := NewMarketStream("ws://unused")
	for i := 0; i < maxStreamBars+20; i++ {
		s.push(Bar{Close: float64(i), Volume: 1})
	}

	bars, ok := s.Snapshot(time.Minute)
	require.True(t, ok)
	require.Len(t, bars, maxStreamBars)
	assert.Equal(t, float64(20), bars[0].Close, "oldest bars are evicted first")
}

func TestRun_ConsumesBarMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for i := 0; i < 3; i++ {
			raw, _ := json.Marshal(Bar{Close: 100 + float64(i), Volume: 10})
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
		}
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewMarketStream(wsURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		bars, ok := s.Snapshot(time.Minute)
		return ok && len(bars) == 3
	}, 2*time.Second, 10*time.Millisecond)

	bars, ok := s.Snapshot(time.Minute)
	require.True(t, ok)
	assert.Equal(t, 102.0, bars[2].Close)
}
