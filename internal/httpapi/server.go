package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RefreshFunc runs one ingestion+calculate cycle and returns the new content
// to serve. The server never calls it concurrently with itself.
type RefreshFunc func(ctx context.Context) (*Content, error)

// Config tunes the read API server.
type Config struct {
	Host string
	Port int

	// RefreshInterval triggers periodic background refreshes when positive.
	RefreshInterval time.Duration
	// RefreshTimeout bounds one refresh cycle. Defaults to 10 minutes.
	RefreshTimeout time.Duration

	Version string
}

// Server is the HTTP read API over the latest report snapshot. Readers serve
// whatever generation is published; a refresh builds the next one off to the
// side and swaps it in atomically.
type Server struct {
	cfg      Config
	snapshot *Snapshot
	refresh  RefreshFunc
	metrics  *apiMetrics
	httpSrv  *http.Server
}

// NewServer builds a server over an initial snapshot. refresh may be nil,
// which disables POST /api/refresh and the periodic cycle.
func NewServer(cfg Config, snapshot *Snapshot, refresh RefreshFunc) *Server {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 10 * time.Minute
	}
	s := &Server{
		cfg:      cfg,
		snapshot: snapshot,
		refresh:  refresh,
		metrics:  newAPIMetrics(),
	}
	if c := snapshot.Load(); c != nil {
		s.metrics.itemsServed.Set(float64(len(c.Items)))
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, also used directly by tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(traceMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(recoverMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/metrics", s.handleMetricsReport)
		r.Get("/work-items", s.handleWorkItems)
		r.Get("/work-items/{id}", s.handleWorkItem)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/health", s.handleHealth)
		r.Post("/refresh", s.handleRefresh)
	})
	r.Handle("/metrics", s.metrics.handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "no such route")
	})
	return r
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string { return s.httpSrv.Addr }

// Start serves until ctx is cancelled, then drains connections for up to
// ten seconds. The periodic refresh loop, when configured, runs alongside
// and stops with the same context.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.RefreshInterval > 0 && s.refresh != nil {
		go s.refreshLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("API server listening")
		if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("draining connections: %w", err)
	}
	return <-errCh
}

func (s *Server) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.snapshot.BeginRefresh() {
				log.Debug().Msg("Skipping periodic refresh, one is already running")
				continue
			}
			s.runRefresh()
		}
	}
}
