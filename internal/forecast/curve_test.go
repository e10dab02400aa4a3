package forecast

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lox/wettermonitor/internal/models"
	"github.com/lox/wettermonitor/internal/store"
)

var analogDate = time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

func seedCurve(t *testing.T, s *store.Store) {
	t.Helper()
	var obs []models.Observation
	for i := 0; i < 5; i++ {
		at := analogDate.Add(time.Duration(i) * store.Grid)
		obs = append(obs,
			reading("mythenquai", at, 10+float64(i)),
			reading("tiefenbrunnen", at, 12+float64(i)),
		)
	}
	// beyond the curve horizon
	obs = append(obs, reading("mythenquai", analogDate.Add(30*store.Grid), 40))
	insert(t, s, obs)
}

func TestCurveBuild(t *testing.T) {
	tests := []struct {
		name       string
		current    float64
		wantOffset float64
	}{
		{"warmer today", 15, 4},
		{"colder today", 9.5, -1.5},
		{"same level keeps shape", 11, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestStore(t, testNow)
			seedCurve(t, s)
			insert(t, s, []models.Observation{reading("mythenquai", time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC), tt.current)})

			series, err := NewCurveBuilder(s, nil, 30, store.Grid).Build(context.Background(), analogDate, s.Now())
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if len(series.Points) != 5 {
				t.Fatalf("len(Points) = %d, want 5", len(series.Points))
			}
			if !series.Corrected || series.Offset != tt.wantOffset {
				t.Errorf("Offset = %v (corrected %v), want %v", series.Offset, series.Corrected, tt.wantOffset)
			}

			anchor := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
			if !series.Anchor.Equal(anchor) {
				t.Errorf("Anchor = %v, want %v", series.Anchor, anchor)
			}
			for i, p := range series.Points {
				wantTS := anchor.Add(time.Duration(i) * store.Grid)
				if !p.Timestamp.Equal(wantTS) {
					t.Errorf("point %d at %v, want %v", i, p.Timestamp, wantTS)
				}
				want := models.Round1(11 + float64(i) + tt.wantOffset)
				if p.AirTemperature != want {
					t.Errorf("point %d = %v, want %v", i, p.AirTemperature, want)
				}
			}
			if series.Points[0].AirTemperature != tt.current {
				t.Errorf("first point = %v, want current %v", series.Points[0].AirTemperature, tt.current)
			}
		})
	}
}

func TestCurveBuild_NoCurrentReading(t *testing.T) {
	s := setupTestStore(t, testNow)
	seedCurve(t, s)
	insert(t, s, []models.Observation{{
		StationID:          "mythenquai",
		ObservedAt:         time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
		BarometricPressure: sql.NullFloat64{Float64: 970, Valid: true},
	}})

	series, err := NewCurveBuilder(s, nil, 30, store.Grid).Build(context.Background(), analogDate, s.Now())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if series.Corrected {
		t.Error("series should not be corrected without a current temperature")
	}
	if series.Points[0].AirTemperature != 11 {
		t.Errorf("first point = %v, want raw 11", series.Points[0].AirTemperature)
	}
}

func TestCurveBuild_EmptyHistory(t *testing.T) {
	s := setupTestStore(t, testNow)

	_, err := NewCurveBuilder(s, nil, 30, store.Grid).Build(context.Background(), analogDate, s.Now())
	if !errors.Is(err, ErrEmptyHistoricalWindow) {
		t.Errorf("err = %v, want ErrEmptyHistoricalWindow", err)
	}
}
