package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/engage/internal/metrics"
)

type payload struct {
	Score int    `json:"score"`
	Note  string `json:"note"`
}

func TestGetJSON_HitDecodesValue(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(client, "engage:")

	raw, err := json.Marshal(payload{Score: 82, Note: "cached"})
	require.NoError(t, err)
	mock.ExpectGet("engage:signals:market").SetVal(string(raw))

	var out payload
	ok, err := c.GetJSON(context.Background(), "signals:market", &out)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload{Score: 82, Note: "cached"}, out)
	assert.Equal(t, int64(1), c.Stats().Hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJSON_MissIsNotAnError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(client, "engage:")

	mock.ExpectGet("engage:signals:news").RedisNil()

	var out payload
	ok, err := c.GetJSON(context.Background(), "signals:news", &out)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestGetJSON_BackendErrorCounted(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(client, "engage:")

	mock.ExpectGet("engage:signals:market").SetErr(errors.New("connection refused"))

	var out payload
	ok, err := c.GetJSON(context.Background(), "signals:market", &out)

	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Errors)
}

func TestGetJSON_CorruptValueCounted(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(client, "engage:")

	mock.ExpectGet("engage:signals:market").SetVal("{not json")

	var out payload
	ok, err := c.GetJSON(context.Background(), "signals:market", &out)

	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Errors)
}

func TestSetJSON_StoresUnderPrefixWithTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(client, "engage:")

	v := payload{Score: 64, Note: "fresh"}
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	mock.ExpectSet("engage:signals:news", raw, 15*time.Minute).SetVal("OK")

	require.NoError(t, c.SetJSON(context.Background(), "signals:news", v, 15*time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetJSON_BackendErrorSurfaces(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(client, "engage:")

	raw, err := json.Marshal(payload{Score: 1})
	require.NoError(t, err)
	mock.ExpectSet("engage:k", raw, time.Minute).SetErr(errors.New("oom"))

	err = c.SetJSON(context.Background(), "k", payload{Score: 1}, time.Minute)
	assert.Error(t, err)
	assert.Equal(t, int64(1), c.Stats().Errors)
}

func TestInstrument_MirrorsHitsAndMissesToExposition(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(client, "engage:")

	reg := metrics.NewRegistry()
	c.Instrument(reg.CacheHits.WithLabelValues("redis"), reg.CacheMisses.WithLabelValues("redis"))

	mock.ExpectGet("engage:signals:market").RedisNil()
	var out payload
	ok, err := c.GetJSON(context.Background(), "signals:market", &out)
	require.NoError(t, err)
	require.False(t, ok)

	raw, err := json.Marshal(payload{Score: 70})
	require.NoError(t, err)
	mock.ExpectGet("engage:signals:market").SetVal(string(raw))
	ok, err = c.GetJSON(context.Background(), "signals:market", &out)
	require.NoError(t, err)
	require.True(t, ok)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `engage_cache_hits_total{cache_type="redis"} 1`)
	assert.Contains(t, body, `engage_cache_misses_total{cache_type="redis"} 1`)
}

func TestHitRate(t *testing.T) {
	assert.Zero(t, Stats{}.HitRate())
	assert.InDelta(t, 0.75, Stats{Hits: 3, Misses: 1}.HitRate(), 1e-9)
}

func TestHealthy(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(client, "")

	mock.ExpectPing().SetVal("PONG")
	assert.True(t, c.Healthy(context.Background()))

	mock.ExpectPing().SetErr(errors.New("gone"))
	assert.False(t, c.Healthy(context.Background()))
}
