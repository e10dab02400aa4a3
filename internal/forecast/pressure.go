package forecast

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/lox/wettermonitor/internal/models"
)

const defaultPressureWindow = 5 * time.Hour

// PressureTrend is a coarse outlook derived from the pressure change over the
// last few hours.
type PressureTrend int

const (
	TrendUnknown PressureTrend = iota
	TrendStrongRise
	TrendRise
	TrendFall
	TrendStrongFall
)

func (t PressureTrend) String() string {
	switch t {
	case TrendStrongRise:
		return "strong_rise"
	case TrendRise:
		return "rise"
	case TrendFall:
		return "fall"
	case TrendStrongFall:
		return "strong_fall"
	default:
		return "unknown"
	}
}

// Symbol is the dashboard icon for the trend.
func (t PressureTrend) Symbol() string {
	switch t {
	case TrendStrongRise:
		return "☀️"
	case TrendRise:
		return "⛅"
	case TrendFall:
		return "🌦"
	case TrendStrongFall:
		return "⛈"
	default:
		return ""
	}
}

func (t PressureTrend) Description() string {
	switch t {
	case TrendStrongRise:
		return "a lot better"
	case TrendRise:
		return "better"
	case TrendFall:
		return "worse"
	case TrendStrongFall:
		return "a lot worse"
	default:
		return "not enough data"
	}
}

func (t PressureTrend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ClassifyPressure compares the first and last valid values in order.
func ClassifyPressure(values []sql.NullFloat64) PressureTrend {
	var first, last float64
	var n int
	for _, v := range values {
		if !v.Valid {
			continue
		}
		if n == 0 {
			first = v.Float64
		}
		last = v.Float64
		n++
	}
	if n < 2 {
		return TrendUnknown
	}

	delta := last - first
	switch {
	case delta > 5:
		return TrendStrongRise
	case delta > 0:
		return TrendRise
	case delta > -5:
		return TrendFall
	default:
		return TrendStrongFall
	}
}

type PressureClassifier struct {
	obs      ObservationReader
	stations []string
	window   time.Duration
}

func NewPressureClassifier(obs ObservationReader, stations []string, window time.Duration) *PressureClassifier {
	if window <= 0 {
		window = defaultPressureWindow
	}
	return &PressureClassifier{obs: obs, stations: stations, window: window}
}

// Classify reads [now-window, now], averages stations per timestamp and
// classifies the resulting series.
func (c *PressureClassifier) Classify(ctx context.Context, now time.Time) PressureTrend {
	w, err := c.obs.WindowAround(ctx, c.stations, now, c.window, 0, models.FieldBarometricPressure)
	if err != nil {
		log.Printf("forecast: pressure window: %v", err)
		return TrendUnknown
	}

	instants := w.Instants()
	values := make([]sql.NullFloat64, 0, len(instants))
	for _, inst := range instants {
		mean, ok := models.Mean(inst.Readings, models.FieldBarometricPressure)
		values = append(values, sql.NullFloat64{Float64: mean, Valid: ok})
	}
	return ClassifyPressure(values)
}
