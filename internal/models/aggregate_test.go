package models

import (
	"database/sql"
	"testing"
	"time"
)

func TestCircularMean(t *testing.T) {
	tests := []struct {
		name    string
		degrees []float64
		want    float64
		compass string
	}{
		{"both north", []float64{0, 0}, 0, "N"},
		{"straddling north", []float64{350, 10}, 0, "N"},
		{"east and south", []float64{90, 180}, 135, "SE"},
		{"single west", []float64{270}, 270, "W"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var obs []Observation
			for i, d := range tt.degrees {
				obs = append(obs, Observation{
					StationID:     string(rune('a' + i)),
					WindDirection: sql.NullFloat64{Float64: d, Valid: true},
				})
			}
			agg := Aggregate(time.Time{}, obs, FieldWindDirection)
			if !agg.WindDirection.Valid {
				t.Fatal("expected a wind direction")
			}
			if agg.WindDirection.Float64 != tt.want {
				t.Errorf("direction = %v, want %v", agg.WindDirection.Float64, tt.want)
			}
			if agg.WindCompass != tt.compass {
				t.Errorf("compass = %q, want %q", agg.WindCompass, tt.compass)
			}
		})
	}
}

func TestCircularMean_NotArithmetic(t *testing.T) {
	got, ok := CircularMean([]float64{350, 10})
	if !ok {
		t.Fatal("expected a mean")
	}
	if Compass(got) == "S" {
		t.Errorf("circular mean of 350 and 10 landed south (%v)", got)
	}
}

func TestCompassBoundaries(t *testing.T) {
	tests := []struct {
		degrees float64
		want    string
	}{
		{0, "N"},
		{22.5, "N"},
		{22.6, "NE"},
		{67.5, "NE"},
		{67.6, "E"},
		{112.5, "E"},
		{157.5, "SE"},
		{180, "S"},
		{202.5, "S"},
		{247.5, "SW"},
		{292.5, "W"},
		{337.5, "NW"},
		{337.6, "N"},
		{360, "N"},
	}

	for _, tt := range tests {
		if got := Compass(tt.degrees); got != tt.want {
			t.Errorf("Compass(%v) = %q, want %q", tt.degrees, got, tt.want)
		}
	}
}

func TestAggregate_ScalarMeanIgnoresMissing(t *testing.T) {
	obs := []Observation{
		{StationID: "mythenquai", AirTemperature: sql.NullFloat64{Float64: 10.04, Valid: true}},
		{StationID: "tiefenbrunnen", AirTemperature: sql.NullFloat64{Float64: 11.0, Valid: true}, WaterTemperature: sql.NullFloat64{Float64: 7.2, Valid: true}},
		{StationID: "broken"},
	}

	agg := Aggregate(time.Time{}, obs)
	if agg.Empty() {
		t.Fatal("expected a populated reading")
	}
	if len(agg.Stations) != 3 {
		t.Errorf("len(Stations) = %d, want 3", len(agg.Stations))
	}
	if !agg.AirTemperature.Valid || agg.AirTemperature.Float64 != 10.5 {
		t.Errorf("AirTemperature = %+v, want 10.5", agg.AirTemperature)
	}
	if !agg.WaterTemperature.Valid || agg.WaterTemperature.Float64 != 7.2 {
		t.Errorf("WaterTemperature = %+v, want 7.2", agg.WaterTemperature)
	}
	if agg.BarometricPressure.Valid {
		t.Error("BarometricPressure should be missing, not zero")
	}
	if agg.WindCompass != "" {
		t.Errorf("WindCompass = %q, want empty", agg.WindCompass)
	}
}

func TestAggregate_Empty(t *testing.T) {
	agg := Aggregate(time.Time{}, nil)
	if !agg.Empty() {
		t.Error("aggregate of no readings should be empty")
	}
	if agg.AirTemperature.Valid {
		t.Error("empty aggregate must not fabricate values")
	}
}
