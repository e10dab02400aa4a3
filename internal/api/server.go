package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/wettermonitor/internal/forecast"
	"github.com/lox/wettermonitor/internal/models"
	"github.com/lox/wettermonitor/internal/store"
)

// ForecastProvider is the read side of the forecast service.
type ForecastProvider interface {
	Latest() *forecast.Snapshot
	PressureTrend(ctx context.Context) forecast.PressureTrend
	Current(ctx context.Context) models.AggregatedReading
}

type Server struct {
	store     *store.Store
	forecasts ForecastProvider
	port      string
}

func NewServer(st *store.Store, forecasts ForecastProvider, port string) *Server {
	return &Server{
		store:     st,
		forecasts: forecasts,
		port:      port,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/current", s.handleAPICurrent)
		r.Get("/forecast", s.handleAPIForecast)
		r.Get("/pressure-trend", s.handleAPIPressureTrend)
		r.Get("/stations", s.handleAPIStations)
		r.Get("/ingest-runs", s.handleAPIIngestRuns)
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
