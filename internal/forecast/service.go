package forecast

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lox/wettermonitor/internal/metrics"
	"github.com/lox/wettermonitor/internal/models"
)

// Refresher pulls fresh observations into the store out of band.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Snapshot is one complete, published forecast.
type Snapshot struct {
	ID         uuid.UUID `json:"id"`
	AnalogDate time.Time `json:"analog_date"`
	Target     time.Time `json:"target"`
	Score      float64   `json:"score"`
	Series     Series    `json:"series"`
	ComputedAt time.Time `json:"computed_at"`
}

type Config struct {
	Stations        []string
	Search          SearchParams
	CurveSamples    int
	PressureWindow  time.Duration
	RefreshInterval time.Duration
}

// Service recomputes the forecast in the background and publishes it to a
// single slot that request handlers read without blocking.
type Service struct {
	obs       ObservationReader
	stations  []string
	searcher  *Searcher
	curves    *CurveBuilder
	pressure  *PressureClassifier
	refresher Refresher
	interval  time.Duration

	latest      atomic.Pointer[Snapshot]
	recomputing atomic.Bool
}

func NewService(obs ObservationReader, refresher Refresher, cfg Config) *Service {
	searcher := NewSearcher(obs, cfg.Stations, cfg.Search)
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		obs:       obs,
		stations:  cfg.Stations,
		searcher:  searcher,
		curves:    NewCurveBuilder(obs, cfg.Stations, cfg.CurveSamples, searcher.Params().Step),
		pressure:  NewPressureClassifier(obs, cfg.Stations, cfg.PressureWindow),
		refresher: refresher,
		interval:  interval,
	}
}

// Run recomputes immediately and then on every tick until ctx is done.
func (s *Service) Run(ctx context.Context) {
	log.Printf("forecast: starting, refresh every %v", s.interval)
	s.Recompute(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("forecast: stopping")
			return
		case <-ticker.C:
			s.Recompute(ctx)
		}
	}
}

// Trigger starts a recomputation in the background.
func (s *Service) Trigger(ctx context.Context) {
	go s.Recompute(ctx)
}

// Recompute searches for the best analog, builds its curve and publishes the
// result. It returns false without doing anything when another recomputation
// is already running. Failures keep the previously published snapshot.
func (s *Service) Recompute(ctx context.Context) bool {
	if !s.recomputing.CompareAndSwap(false, true) {
		metrics.ForecastRecomputations.WithLabelValues("skipped").Inc()
		return false
	}
	defer s.recomputing.Store(false)

	snap, err := s.compute(ctx)
	if err != nil {
		metrics.ForecastRecomputations.WithLabelValues(resultLabel(err)).Inc()
		log.Printf("forecast: recompute: %v", err)
		return true
	}

	s.latest.Store(snap)
	metrics.ForecastRecomputations.WithLabelValues("ok").Inc()
	log.Printf("forecast: analog %s (score %.1f, %d points)", snap.AnalogDate.Format("2006-01-02 15:04"), snap.Score, len(snap.Series.Points))
	return true
}

func (s *Service) compute(ctx context.Context) (*Snapshot, error) {
	res, now, err := s.findAnalog(ctx, s.obs.Now())
	if err != nil {
		return nil, err
	}

	series, err := s.curves.Build(ctx, res.Date, now)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		ID:         uuid.New(),
		AnalogDate: res.Date,
		Target:     res.Target,
		Score:      res.Best.Score,
		Series:     series,
		ComputedAt: time.Now().UTC(),
	}, nil
}

// findAnalog retries the search once after a refresh when the store has no
// recent data. It returns the time the returned result was searched for.
func (s *Service) findAnalog(ctx context.Context, now time.Time) (Result, time.Time, error) {
	retried := false
	for {
		res, err := s.searcher.FindBestAnalog(ctx, now)
		if !errors.Is(err, ErrNoRecentData) || retried || s.refresher == nil {
			return res, now, err
		}
		retried = true

		log.Printf("forecast: no recent data, refreshing before retry")
		if rerr := s.refresher.Refresh(ctx); rerr != nil {
			log.Printf("forecast: refresh: %v", rerr)
		}
		now = s.obs.Now()
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNoRecentData):
		return "no_recent_data"
	case errors.Is(err, ErrNoAnalog):
		return "no_analog"
	case errors.Is(err, ErrEmptyHistoricalWindow):
		return "empty_history"
	default:
		return "error"
	}
}

// Latest returns the last published snapshot, or nil before the first success.
func (s *Service) Latest() *Snapshot {
	return s.latest.Load()
}

func (s *Service) ForecastDate() (time.Time, bool) {
	snap := s.latest.Load()
	if snap == nil {
		return time.Time{}, false
	}
	return snap.AnalogDate, true
}

func (s *Service) ForecastCurve() Series {
	snap := s.latest.Load()
	if snap == nil {
		return Series{}
	}
	return snap.Series
}

func (s *Service) PressureTrend(ctx context.Context) PressureTrend {
	return s.pressure.Classify(ctx, s.obs.Now())
}

func (s *Service) Current(ctx context.Context) models.AggregatedReading {
	return s.obs.LatestAggregated(ctx, s.stations)
}
