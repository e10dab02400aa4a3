package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/wettermonitor/internal/models"
	"github.com/lox/wettermonitor/internal/store"
)

// ErrEmptyHistoricalWindow means the analog date has no temperature data after it.
var ErrEmptyHistoricalWindow = errors.New("historical window is empty")

const defaultCurveSamples = 30

type Point struct {
	Timestamp      time.Time `json:"timestamp"`
	AirTemperature float64   `json:"air_temperature"`
}

// Series is a historical temperature trajectory moved onto the present axis.
type Series struct {
	AnalogDate time.Time `json:"analog_date"`
	Anchor     time.Time `json:"anchor"`
	Offset     float64   `json:"offset"`
	Corrected  bool      `json:"corrected"`
	Points     []Point   `json:"points"`
}

func (s Series) Empty() bool {
	return len(s.Points) == 0
}

type CurveBuilder struct {
	obs      ObservationReader
	stations []string
	samples  int
	step     time.Duration
}

func NewCurveBuilder(obs ObservationReader, stations []string, samples int, step time.Duration) *CurveBuilder {
	if samples <= 0 {
		samples = defaultCurveSamples
	}
	if step <= 0 {
		step = store.Grid
	}
	return &CurveBuilder{obs: obs, stations: stations, samples: samples, step: step}
}

// Build reads the samples following analogDate, re-anchors them so analogDate
// lands on now's grid slot and shifts their level to the current measured
// temperature. The shape of the historical trajectory is preserved.
func (b *CurveBuilder) Build(ctx context.Context, analogDate, now time.Time) (Series, error) {
	w, err := b.obs.QueryWindow(ctx, store.Query{
		Stations: b.stations,
		Fields:   []models.Field{models.FieldAirTemperature},
		Start:    analogDate,
		End:      analogDate.Add(time.Duration(b.samples-1) * b.step),
		Order:    store.Asc,
		Limit:    b.samples,
	})
	if err != nil {
		return Series{}, fmt.Errorf("curve window: %w", err)
	}

	anchor := store.RoundDownToGrid(now, store.Grid)
	series := Series{AnalogDate: analogDate, Anchor: anchor}
	for _, inst := range w.Instants() {
		agg := inst.Aggregate(models.FieldAirTemperature)
		if !agg.AirTemperature.Valid {
			continue
		}
		series.Points = append(series.Points, Point{
			Timestamp:      anchor.Add(inst.Timestamp.Sub(analogDate)),
			AirTemperature: agg.AirTemperature.Float64,
		})
	}
	if series.Empty() {
		return Series{}, ErrEmptyHistoricalWindow
	}

	current := b.obs.LatestAggregated(ctx, b.stations, models.FieldAirTemperature)
	if !current.AirTemperature.Valid {
		return series, nil
	}
	series.Offset = models.Round1(current.AirTemperature.Float64 - series.Points[0].AirTemperature)
	series.Corrected = true
	if series.Offset != 0 {
		for i := range series.Points {
			series.Points[i].AirTemperature = models.Round1(series.Points[i].AirTemperature + series.Offset)
		}
	}
	return series, nil
}
