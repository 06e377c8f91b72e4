// Package api exposes the engagement engine over a small HTTP surface.
// The engine owns no wire format; handlers translate between JSON and
// library calls. Identity arrives pre-validated from the fronting
// request layer as an X-User-ID header.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/postpulse/engage/internal/app"
	"github.com/postpulse/engage/internal/config"
	"github.com/postpulse/engage/internal/metrics"
)

// Server is the engine's HTTP front.
type Server struct {
	router  *mux.Router
	server  *http.Server
	handler *Handlers
	cfg     config.ServerConfig
}

// NewServer builds the server and its routes.
func NewServer(cfg config.ServerConfig, engine *app.Engine, reg *metrics.Registry, health *HealthChecker) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		handler: NewHandlers(engine),
		cfg:     cfg,
	}

	s.router.Use(requestLogging)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/predictions", s.handler.CreatePrediction).Methods(http.MethodPost)
	v1.HandleFunc("/predictions/{id}/outcome", s.handler.RecordOutcome).Methods(http.MethodPost)
	v1.HandleFunc("/timing", s.handler.RecommendTiming).Methods(http.MethodGet)
	v1.HandleFunc("/accuracy", s.handler.AccuracySummary).Methods(http.MethodGet)
	v1.HandleFunc("/history", s.handler.AddHistory).Methods(http.MethodPost)

	s.router.HandleFunc("/health", health.ServeHTTP).Methods(http.MethodGet)
	s.router.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
