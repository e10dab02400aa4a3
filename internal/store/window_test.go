package store

import (
	"testing"
	"time"

	"github.com/lox/wettermonitor/internal/models"
)

func TestWindowInstants(t *testing.T) {
	base := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow([]models.Observation{
		temp("tiefenbrunnen", base.Add(Grid), 12),
		temp("mythenquai", base, 10),
		temp("tiefenbrunnen", base, 11),
	})

	instants := w.Instants()
	if len(instants) != 2 {
		t.Fatalf("len(instants) = %d, want 2", len(instants))
	}
	if len(instants[0].Readings) != 2 {
		t.Errorf("first instant has %d readings, want 2", len(instants[0].Readings))
	}
	if len(instants[1].Readings) != 1 {
		t.Errorf("single-station instant has %d readings, want 1", len(instants[1].Readings))
	}

	latest, ok := w.Latest()
	if !ok || !latest.Timestamp.Equal(base.Add(Grid)) {
		t.Errorf("Latest() = %v, %v", latest.Timestamp, ok)
	}

	series := w.MeanSeries(models.FieldAirTemperature)
	if got := series[base.Unix()]; got != 10.5 {
		t.Errorf("mean at base = %v, want 10.5", got)
	}
	if _, ok := w.MeanSeries(models.FieldBarometricPressure)[base.Unix()]; ok {
		t.Error("missing field must not appear in the series")
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	a := NewWindow([]models.Observation{temp("a", base.Add(2*Grid), 1)})
	b := NewWindow([]models.Observation{temp("a", base, 2), temp("a", base.Add(3*Grid), 3)})

	merged := Merge(a, b)
	if merged.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", merged.Len())
	}
	for i, want := range []float64{2, 1, 3} {
		if got := merged.Observations[i].AirTemperature.Float64; got != want {
			t.Errorf("merged[%d] = %v, want %v", i, got, want)
		}
	}
	if a.Observations[0].AirTemperature.Float64 != 1 || b.Observations[0].AirTemperature.Float64 != 2 {
		t.Error("Merge modified its inputs")
	}

	if _, ok := (Window{}).Latest(); ok {
		t.Error("empty window has no latest instant")
	}
}
