// Package scheduler runs the engine's periodic maintenance jobs: keeping
// the external-signal cache warm and pruning posting history to the
// retention cap.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/postpulse/engage/internal/config"
	"github.com/postpulse/engage/internal/signals"
	"github.com/postpulse/engage/internal/store"
)

// jobTimeout bounds every scheduled run.
const jobTimeout = 2 * time.Minute

// Scheduler owns the cron runner.
type Scheduler struct {
	cron       *cron.Cron
	cfg        config.SchedulerConfig
	aggregator *signals.Aggregator // nil disables signal refresh
	history    store.HistoryRepo
}

// New builds a scheduler; Start registers and launches the jobs.
func New(cfg config.SchedulerConfig, aggregator *signals.Aggregator, history store.HistoryRepo) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		cfg:        cfg,
		aggregator: aggregator,
		history:    history,
	}
}

// Start registers the configured jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		log.Info().Msg("scheduler disabled by configuration")
		return nil
	}

	if s.aggregator != nil && s.cfg.SignalRefreshSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.SignalRefreshSpec, s.refreshSignals); err != nil {
			return fmt.Errorf("register signal refresh job: %w", err)
		}
	}
	if s.history != nil && s.cfg.HistoryPruneSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.HistoryPruneSpec, s.pruneHistory); err != nil {
			return fmt.Errorf("register history prune job: %w", err)
		}
	}

	s.cron.Start()
	log.Info().
		Str("signal_refresh", s.cfg.SignalRefreshSpec).
		Str("history_prune", s.cfg.HistoryPruneSpec).
		Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// refreshSignals re-collects external signals so the payload cache stays
// warm between user requests.
func (s *Scheduler) refreshSignals() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	bundle := s.aggregator.Collect(ctx)
	log.Debug().
		Int("sources_queried", bundle.SourcesQueried).
		Int("sources_succeeded", bundle.SourcesSucceeded).
		Int("recommendations", len(bundle.Recommendations)).
		Msg("signal refresh completed")
}

// pruneHistory trims every user's history to the retention cap as a
// backstop to per-insert trimming.
func (s *Scheduler) pruneHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	keep := s.cfg.HistoryRetainPerUser
	if keep <= 0 {
		keep = store.HistoryRetention
	}
	deleted, err := s.history.Prune(ctx, keep)
	if err != nil {
		log.Error().Err(err).Msg("history prune failed")
		return
	}
	log.Info().Int64("deleted", deleted).Int("keep", keep).Msg("history prune completed")
}
