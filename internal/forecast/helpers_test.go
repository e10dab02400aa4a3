package forecast

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/wettermonitor/internal/models"
	"github.com/lox/wettermonitor/internal/store"
)

func setupTestStore(t *testing.T, now time.Time) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db, time.UTC)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s.SetClock(func() time.Time { return now })
	return s
}

func reading(station string, at time.Time, air float64) models.Observation {
	return models.Observation{
		StationID:      station,
		ObservedAt:     at,
		AirTemperature: sql.NullFloat64{Float64: air, Valid: true},
	}
}

func insert(t *testing.T, s *store.Store, obs []models.Observation) {
	t.Helper()
	if _, err := s.InsertObservations(context.Background(), obs); err != nil {
		t.Fatalf("InsertObservations: %v", err)
	}
}

func currentValue(k int) float64 {
	return 18 + 0.1*float64(k%7)
}

// seedCurrent writes the 29 samples preceding now for one station.
func seedCurrent(t *testing.T, s *store.Store, now time.Time) {
	t.Helper()
	nowGrid := store.RoundDownToGrid(now, store.Grid)
	var obs []models.Observation
	for k := 0; k < defaultSampleCount; k++ {
		obs = append(obs, reading("mythenquai", nowGrid.Add(-time.Duration(k)*store.Grid), currentValue(k)))
	}
	insert(t, s, obs)
}

// seedHistory writes nine years of candidate windows. Only the candidate one
// year and five days before the target repeats the current samples; every
// other candidate is off by at least one degree. Five samples follow the
// matching start so a curve can be built from it. It returns that start.
func seedHistory(t *testing.T, s *store.Store, now time.Time) time.Time {
	t.Helper()
	target := store.RoundDownToGrid(now.Add(defaultHorizon), store.Grid)
	var obs []models.Observation
	var match time.Time
	for y := 1; y <= 9; y++ {
		for d := 0; d < defaultDayOffsets; d++ {
			start := target.Add(-time.Duration(y)*store.YearOffset - time.Duration(d)*day)
			isMatch := y == 1 && d == 5
			if isMatch {
				match = start
			}
			for k := 0; k < defaultSampleCount; k++ {
				v := currentValue(k)
				if !isMatch {
					noise := 1 + float64((y+d+k)%3)
					if k%2 == 1 {
						noise = -noise
					}
					v += noise
				}
				at := start.Add(-time.Duration(k) * store.Grid)
				obs = append(obs, reading("mythenquai", at, v), reading("tiefenbrunnen", at, v))
			}
		}
	}
	for i := 1; i <= 5; i++ {
		obs = append(obs, reading("mythenquai", match.Add(time.Duration(i)*store.Grid), currentValue(0)+0.5*float64(i)))
	}
	insert(t, s, obs)
	return match
}
