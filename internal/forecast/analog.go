package forecast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/lox/wettermonitor/internal/metrics"
	"github.com/lox/wettermonitor/internal/models"
	"github.com/lox/wettermonitor/internal/store"
)

var (
	// ErrNoRecentData means the current window is empty, usually because the
	// store has not been synced yet.
	ErrNoRecentData = errors.New("no recent observations")
	// ErrNoAnalog means no candidate shared a single sample with the current window.
	ErrNoAnalog = errors.New("no analog with overlapping data")
)

// ObservationReader is the read side of the observation store.
type ObservationReader interface {
	Now() time.Time
	QueryWindow(ctx context.Context, q store.Query) (store.Window, error)
	WindowAround(ctx context.Context, stations []string, center time.Time, before, after time.Duration, fields ...models.Field) (store.Window, error)
	HistoryWindow(ctx context.Context, stations []string, center time.Time, before, after time.Duration, years store.YearRange, fields ...models.Field) (store.Window, error)
	LatestAggregated(ctx context.Context, stations []string, fields ...models.Field) models.AggregatedReading
}

type Weighting string

const (
	WeightUniform Weighting = "uniform"
	WeightRecency Weighting = "recency"
)

const (
	defaultSampleCount = 29
	defaultHorizon     = 7 * 24 * time.Hour
	defaultDayOffsets  = 14
	day                = 24 * time.Hour
)

type SearchParams struct {
	LookbackYears int
	SampleCount   int
	Step          time.Duration
	Weighting     Weighting
	Horizon       time.Duration
	DayOffsets    int
}

func (p SearchParams) withDefaults() SearchParams {
	if p.LookbackYears <= 0 {
		p.LookbackYears = 8
	}
	if p.SampleCount <= 0 {
		p.SampleCount = defaultSampleCount
	}
	if p.Step <= 0 {
		p.Step = store.Grid
	}
	if p.Weighting == "" {
		p.Weighting = WeightRecency
	}
	if p.Horizon <= 0 {
		p.Horizon = defaultHorizon
	}
	if p.DayOffsets <= 0 {
		p.DayOffsets = defaultDayOffsets
	}
	return p
}

// weight is the multiplier for the k-th most recent sample.
func (p SearchParams) weight(k int) float64 {
	if p.Weighting == WeightRecency {
		return float64(p.SampleCount + 1 - k)
	}
	return 1
}

// Candidate is one proposed historical start: Years·365d plus Days before the
// target.
type Candidate struct {
	Start   time.Time
	Years   int
	Days    int
	Score   float64
	Overlap int
}

type Result struct {
	Date      time.Time
	Target    time.Time
	Best      Candidate
	Evaluated int
	Eligible  int
}

type Searcher struct {
	obs      ObservationReader
	stations []string
	params   SearchParams
}

func NewSearcher(obs ObservationReader, stations []string, params SearchParams) *Searcher {
	return &Searcher{obs: obs, stations: stations, params: params.withDefaults()}
}

func (s *Searcher) Params() SearchParams {
	return s.params
}

// FindBestAnalog returns the historical start whose preceding samples most
// closely match the samples preceding now. now is on the store's normalized
// axis.
func (s *Searcher) FindBestAnalog(ctx context.Context, now time.Time) (Result, error) {
	started := time.Now()
	defer func() { metrics.AnalogSearchDuration.Observe(time.Since(started).Seconds()) }()

	p := s.params
	nowGrid := store.RoundDownToGrid(now, store.Grid)
	span := time.Duration(p.SampleCount-1) * p.Step

	cur, err := s.obs.WindowAround(ctx, s.stations, nowGrid, span, 0, models.FieldAirTemperature)
	if err != nil {
		log.Printf("forecast: current window: %v", err)
		return Result{}, fmt.Errorf("%w: %v", ErrNoRecentData, err)
	}
	current := cur.MeanSeries(models.FieldAirTemperature)
	if len(current) == 0 {
		return Result{}, ErrNoRecentData
	}

	target := store.RoundDownToGrid(now.Add(p.Horizon), store.Grid)
	histSpan := time.Duration(p.DayOffsets-1)*day + span
	hist, err := s.obs.HistoryWindow(ctx, s.stations, target, histSpan, 0,
		store.YearRange{From: 1, To: p.LookbackYears}, models.FieldAirTemperature)
	if err != nil {
		return Result{}, fmt.Errorf("history window: %w", err)
	}
	history := hist.MeanSeries(models.FieldAirTemperature)

	res := Result{Target: target}
	var best *Candidate
	for years := 1; years <= p.LookbackYears; years++ {
		for days := 0; days < p.DayOffsets; days++ {
			c := Candidate{
				Start: target.Add(-time.Duration(years)*store.YearOffset - time.Duration(days)*day),
				Years: years,
				Days:  days,
			}
			c.Score, c.Overlap = Score(current, history, nowGrid, c.Start, p)
			res.Evaluated++
			if c.Overlap == 0 {
				continue
			}
			res.Eligible++
			if best == nil || c.Score < best.Score {
				best = &c
			}
		}
	}
	metrics.AnalogEligibleCandidates.Set(float64(res.Eligible))

	if best == nil {
		return res, ErrNoAnalog
	}
	res.Best = *best
	res.Date = best.Start
	return res, nil
}

// Score sums the weighted absolute differences between the current series
// ending at nowGrid and the historical series ending at start. Samples missing
// from either side are skipped; overlap counts the ones that were compared.
func Score(current, history map[int64]float64, nowGrid, start time.Time, p SearchParams) (score float64, overlap int) {
	for k := 0; k < p.SampleCount; k++ {
		back := time.Duration(k) * p.Step
		cv, ok := current[nowGrid.Add(-back).Unix()]
		if !ok {
			continue
		}
		hv, ok := history[start.Add(-back).Unix()]
		if !ok {
			continue
		}
		score += math.Abs(hv-cv) * p.weight(k)
		overlap++
	}
	return score, overlap
}
