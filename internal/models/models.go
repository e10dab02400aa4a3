package models

import (
	"database/sql"
	"time"
)

type Station struct {
	StationID string
	Name      string
	Latitude  float64
	Longitude float64
	Active    bool
}

// Field names one measured column of an observation.
type Field string

const (
	FieldAirTemperature     Field = "air_temperature"
	FieldWaterTemperature   Field = "water_temperature"
	FieldWindSpeed          Field = "wind_speed"
	FieldWindForce          Field = "wind_force"
	FieldWindDirection      Field = "wind_direction"
	FieldBarometricPressure Field = "barometric_pressure"
)

var AllFields = []Field{
	FieldAirTemperature,
	FieldWaterTemperature,
	FieldWindSpeed,
	FieldWindForce,
	FieldWindDirection,
	FieldBarometricPressure,
}

func (f Field) Valid() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// Observation is one reading from one station. Sensors fail independently, so
// every measured field is nullable on its own.
type Observation struct {
	ID                 int64
	StationID          string
	ObservedAt         time.Time
	AirTemperature     sql.NullFloat64
	WaterTemperature   sql.NullFloat64
	WindSpeed          sql.NullFloat64
	WindForce          sql.NullFloat64
	WindDirection      sql.NullFloat64
	BarometricPressure sql.NullFloat64
	QCFlags            string
	CreatedAt          time.Time
}

func (o *Observation) Value(f Field) sql.NullFloat64 {
	switch f {
	case FieldAirTemperature:
		return o.AirTemperature
	case FieldWaterTemperature:
		return o.WaterTemperature
	case FieldWindSpeed:
		return o.WindSpeed
	case FieldWindForce:
		return o.WindForce
	case FieldWindDirection:
		return o.WindDirection
	case FieldBarometricPressure:
		return o.BarometricPressure
	}
	return sql.NullFloat64{}
}

func (o *Observation) Set(f Field, v sql.NullFloat64) {
	switch f {
	case FieldAirTemperature:
		o.AirTemperature = v
	case FieldWaterTemperature:
		o.WaterTemperature = v
	case FieldWindSpeed:
		o.WindSpeed = v
	case FieldWindForce:
		o.WindForce = v
	case FieldWindDirection:
		o.WindDirection = v
	case FieldBarometricPressure:
		o.BarometricPressure = v
	}
}

// AggregatedReading combines every station reporting at one instant. A reading
// with no contributing stations is the explicit "no data" value.
type AggregatedReading struct {
	Timestamp          time.Time
	Stations           []string
	AirTemperature     sql.NullFloat64
	WaterTemperature   sql.NullFloat64
	WindSpeed          sql.NullFloat64
	WindForce          sql.NullFloat64
	WindDirection      sql.NullFloat64
	WindCompass        string
	BarometricPressure sql.NullFloat64
}

func (r AggregatedReading) Empty() bool {
	return len(r.Stations) == 0
}

func (r *AggregatedReading) Value(f Field) sql.NullFloat64 {
	switch f {
	case FieldAirTemperature:
		return r.AirTemperature
	case FieldWaterTemperature:
		return r.WaterTemperature
	case FieldWindSpeed:
		return r.WindSpeed
	case FieldWindForce:
		return r.WindForce
	case FieldWindDirection:
		return r.WindDirection
	case FieldBarometricPressure:
		return r.BarometricPressure
	}
	return sql.NullFloat64{}
}

func (r *AggregatedReading) set(f Field, v sql.NullFloat64) {
	switch f {
	case FieldAirTemperature:
		r.AirTemperature = v
	case FieldWaterTemperature:
		r.WaterTemperature = v
	case FieldWindSpeed:
		r.WindSpeed = v
	case FieldWindForce:
		r.WindForce = v
	case FieldWindDirection:
		r.WindDirection = v
	case FieldBarometricPressure:
		r.BarometricPressure = v
	}
}
