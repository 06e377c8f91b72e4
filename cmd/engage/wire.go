package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/postpulse/engage/internal/api"
	"github.com/postpulse/engage/internal/app"
	"github.com/postpulse/engage/internal/cache"
	"github.com/postpulse/engage/internal/config"
	"github.com/postpulse/engage/internal/engine/estimator"
	"github.com/postpulse/engage/internal/metrics"
	"github.com/postpulse/engage/internal/scheduler"
	"github.com/postpulse/engage/internal/signals"
	"github.com/postpulse/engage/internal/store"
	"github.com/postpulse/engage/internal/store/postgres"
	"github.com/postpulse/engage/internal/store/sqlite"
)

// runtime holds everything a command needs, wired from configuration.
type runtime struct {
	Engine    *app.Engine
	Server    *api.Server
	Scheduler *scheduler.Scheduler

	closers []io.Closer
	cancel  context.CancelFunc
}

func buildRuntime(flags *pflag.FlagSet) (*runtime, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	rt := &runtime{}
	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel

	gw, storePing, err := rt.openStorage(cfg.Storage)
	if err != nil {
		cancel()
		return nil, err
	}

	reg := metrics.NewRegistry()

	var payloadCache cache.Cache
	if cfg.Cache.Addr != "" {
		rc := cache.NewRedisCache(cfg.Cache)
		rc.Instrument(reg.CacheHits.WithLabelValues("redis"), reg.CacheMisses.WithLabelValues("redis"))
		rt.closers = append(rt.closers, rc)
		payloadCache = rc
	}

	var est estimator.Estimator
	if cfg.Estimator.Enabled {
		est = estimator.NewHTTPEstimator(cfg.Estimator.HTTP)
	}

	aggregator := buildAggregator(ctx, cfg.Signals, payloadCache)

	engine := app.New(app.Options{
		Gateway:        gw,
		Estimator:      est,
		PredictorCfg:   cfg.Predictor,
		RecommenderCfg: cfg.Timing,
		Aggregator:     aggregator,
		Metrics:        reg,
	})

	health := api.NewHealthChecker(storePing, payloadCache)
	rt.Engine = engine
	rt.Server = api.NewServer(cfg.Server, engine, reg, health)
	rt.Scheduler = scheduler.New(cfg.Scheduler, aggregator, gw.History)
	return rt, nil
}

// openStorage selects the persistence backend from configuration.
func (rt *runtime) openStorage(cfg config.StorageConfig) (store.Gateway, api.Pinger, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	switch cfg.Driver {
	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.DSN)
		if err != nil {
			return store.Gateway{}, nil, fmt.Errorf("connect postgres: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return store.Gateway{}, nil, err
		}
		rt.closers = append(rt.closers, db)
		gw := store.Gateway{
			Predictions: postgres.NewPredictionsRepo(db, timeout),
			Timing:      postgres.NewTimingRepo(db, timeout),
			History:     postgres.NewHistoryRepo(db, timeout),
		}
		return gw, db.PingContext, nil

	case "sqlite", "":
		s, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return store.Gateway{}, nil, err
		}
		rt.closers = append(rt.closers, s)
		return s.Gateway(), s.Ping, nil

	default:
		return store.Gateway{}, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// buildAggregator assembles the enabled signal sources. A source without
// an API key stays off; no sources at all means no aggregator.
func buildAggregator(ctx context.Context, cfg config.SignalsConfig, payloadCache cache.Cache) *signals.Aggregator {
	var sources []signals.Source

	if cfg.Market.APIKey != "" {
		var stream *signals.MarketStream
		if cfg.Market.StreamURL != "" {
			stream = signals.NewMarketStream(cfg.Market.StreamURL)
			go stream.Run(ctx)
		}
		sources = append(sources, signals.NewMarketSource(cfg.Market, stream))
	}
	if cfg.News.APIKey != "" {
		sources = append(sources, signals.NewNewsSource(cfg.News))
	}
	if len(sources) == 0 {
		log.Info().Msg("no external signal sources configured")
		return nil
	}
	return signals.NewAggregator(sources, payloadCache, cfg.Aggregator)
}

func (rt *runtime) Close() {
	rt.cancel()
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed during shutdown")
		}
	}
}
