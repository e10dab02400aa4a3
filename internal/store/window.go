package store

import (
	"slices"
	"time"

	"github.com/lox/wettermonitor/internal/models"
)

// Window is a time-ordered, possibly irregular set of observations from one or
// more stations. Several observations may share a timestamp, one per station.
type Window struct {
	Observations []models.Observation
}

// InstantGroup groups the readings of every station reporting at one timestamp.
// Readings is always a slice, even when a single station reported.
type InstantGroup struct {
	Timestamp time.Time
	Readings  []models.Observation
}

func (i InstantGroup) Aggregate(fields ...models.Field) models.AggregatedReading {
	return models.Aggregate(i.Timestamp, i.Readings, fields...)
}

// NewWindow copies obs into a window sorted by timestamp. Observations sharing
// a timestamp keep their relative order.
func NewWindow(obs []models.Observation) Window {
	sorted := slices.Clone(obs)
	slices.SortStableFunc(sorted, func(a, b models.Observation) int {
		return a.ObservedAt.Compare(b.ObservedAt)
	})
	return Window{Observations: sorted}
}

// Merge unions ordered chunks into a new window. The inputs are not modified;
// on equal timestamps earlier chunks come first.
func Merge(windows ...Window) Window {
	var total int
	for _, w := range windows {
		total += len(w.Observations)
	}
	all := make([]models.Observation, 0, total)
	for _, w := range windows {
		all = append(all, w.Observations...)
	}
	return NewWindow(all)
}

func (w Window) Len() int {
	return len(w.Observations)
}

func (w Window) Empty() bool {
	return len(w.Observations) == 0
}

// Instants groups the window by timestamp in ascending order.
func (w Window) Instants() []InstantGroup {
	var out []InstantGroup
	for _, obs := range w.Observations {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(obs.ObservedAt) {
			out[n-1].Readings = append(out[n-1].Readings, obs)
			continue
		}
		out = append(out, InstantGroup{Timestamp: obs.ObservedAt, Readings: []models.Observation{obs}})
	}
	return out
}

// Latest returns the group at the maximal timestamp.
func (w Window) Latest() (InstantGroup, bool) {
	instants := w.Instants()
	if len(instants) == 0 {
		return InstantGroup{}, false
	}
	return instants[len(instants)-1], true
}

// MeanSeries returns the unrounded cross-station mean of f per timestamp, keyed
// by unix seconds of the normalized timestamp. Timestamps where no station
// carries f are absent.
func (w Window) MeanSeries(f models.Field) map[int64]float64 {
	series := make(map[int64]float64)
	for _, inst := range w.Instants() {
		if mean, ok := models.Mean(inst.Readings, f); ok {
			series[inst.Timestamp.Unix()] = mean
		}
	}
	return series
}
