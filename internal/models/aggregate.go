package models

import (
	"database/sql"
	"math"
	"time"
)

var compassPoints = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Mean averages the valid values of f across readings. The second result is
// false when no reading carries the field.
func Mean(readings []Observation, f Field) (float64, bool) {
	var sum float64
	var count int
	for i := range readings {
		v := readings[i].Value(f)
		if !v.Valid {
			continue
		}
		sum += v.Float64
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// CircularMean returns atan2(Σsin θ, Σcos θ) in degrees within [0, 360).
func CircularMean(degrees []float64) (float64, bool) {
	if len(degrees) == 0 {
		return 0, false
	}
	var sumSin, sumCos float64
	for _, d := range degrees {
		rad := d * math.Pi / 180
		sumSin += math.Sin(rad)
		sumCos += math.Cos(rad)
	}
	mean := math.Atan2(sumSin, sumCos) * 180 / math.Pi
	return math.Mod(mean+360, 360), true
}

// Compass buckets a direction into one of eight 45° sectors. Each sector is
// half-open on its lower edge, so 22.5 is still N and 67.5 is still NE.
func Compass(degrees float64) string {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	if d <= 22.5 || d > 337.5 {
		return "N"
	}
	return compassPoints[int(math.Ceil((d-22.5)/45))]
}

// Aggregate collapses the readings of every station reporting at ts into one
// reading. Scalars are averaged ignoring missing values and wind direction uses
// the circular mean, all rounded to one decimal.
func Aggregate(ts time.Time, readings []Observation, fields ...Field) AggregatedReading {
	if len(fields) == 0 {
		fields = AllFields
	}
	agg := AggregatedReading{Timestamp: ts}
	if len(readings) == 0 {
		return agg
	}

	seen := make(map[string]bool, len(readings))
	for i := range readings {
		if !seen[readings[i].StationID] {
			seen[readings[i].StationID] = true
			agg.Stations = append(agg.Stations, readings[i].StationID)
		}
	}

	for _, f := range fields {
		if f == FieldWindDirection {
			var dirs []float64
			for i := range readings {
				if v := readings[i].WindDirection; v.Valid {
					dirs = append(dirs, v.Float64)
				}
			}
			mean, ok := CircularMean(dirs)
			if !ok {
				continue
			}
			mean = Round1(mean)
			if mean >= 360 {
				mean = 0
			}
			agg.WindDirection = sql.NullFloat64{Float64: mean, Valid: true}
			agg.WindCompass = Compass(mean)
			continue
		}
		if mean, ok := Mean(readings, f); ok {
			agg.set(f, sql.NullFloat64{Float64: Round1(mean), Valid: true})
		}
	}
	return agg
}
