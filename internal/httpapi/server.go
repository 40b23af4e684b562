// Package httpapi is the runner's ambient status surface: an
// unauthenticated health check and a Prometheus scrape endpoint, nothing
// more. The administrative CRUD API (channel management, manual-test
// transmissions, credential storage) that spec.md's original system
// exposes is an explicit external collaborator, not part of this
// process — see DESIGN.md.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vhfbalise/runner/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

type ServerOptions struct {
	Addr      string
	Store     HealthSource
	Collector *metrics.Collector // may be nil to skip registering live gauges twice
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverer)
	r.Use(accessLogger(opts.Log))
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(opts.Store, opts.Version, opts.StartTime)
	r.Get("/health", health.ServeHTTP)

	if opts.Collector != nil {
		prometheus.MustRegister(opts.Collector)
	}
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return &Server{
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: opts.Log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("status endpoint listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
