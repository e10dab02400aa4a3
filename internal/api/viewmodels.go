package api

import (
	"database/sql"
	"time"

	"github.com/lox/wettermonitor/internal/forecast"
	"github.com/lox/wettermonitor/internal/models"
	"github.com/lox/wettermonitor/internal/store"
)

// HealthStatus represents the overall health of ingestion and forecasting.
type HealthStatus struct {
	Status           string          `json:"status"`
	MigrationVersion int             `json:"migration_version"`
	Stations         []StationHealth `json:"stations"`
	ForecastAt       *time.Time      `json:"forecast_computed_at,omitempty"`
	Errors           []string        `json:"errors,omitempty"`
}

// StationHealth represents the health of a single station.
type StationHealth struct {
	StationID  string    `json:"station_id"`
	LastSeen   time.Time `json:"last_seen"`
	AgeMinutes int       `json:"age_minutes"`
	Stale      bool      `json:"stale"`
}

type CurrentView struct {
	Available          bool      `json:"available"`
	Timestamp          time.Time `json:"timestamp,omitzero"`
	Stations           []string  `json:"stations,omitempty"`
	AirTemperature     *float64  `json:"air_temperature,omitempty"`
	WaterTemperature   *float64  `json:"water_temperature,omitempty"`
	WindSpeed          *float64  `json:"wind_speed,omitempty"`
	WindForce          *float64  `json:"wind_force,omitempty"`
	WindDirection      *float64  `json:"wind_direction,omitempty"`
	WindCompass        string    `json:"wind_compass,omitempty"`
	BarometricPressure *float64  `json:"barometric_pressure,omitempty"`
}

type ForecastView struct {
	Available  bool             `json:"available"`
	ID         string           `json:"id,omitempty"`
	AnalogDate time.Time        `json:"analog_date,omitzero"`
	ComputedAt time.Time        `json:"computed_at,omitzero"`
	Offset     float64          `json:"offset"`
	Corrected  bool             `json:"corrected"`
	Points     []forecast.Point `json:"points"`
}

type PressureTrendView struct {
	Trend       forecast.PressureTrend `json:"trend"`
	Symbol      string                 `json:"symbol"`
	Description string                 `json:"description"`
}

type IngestRunView struct {
	ID            int64      `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Source        string     `json:"source"`
	Endpoint      string     `json:"endpoint"`
	StationID     string     `json:"station_id,omitempty"`
	HTTPStatus    int64      `json:"http_status,omitempty"`
	RecordsStored int64      `json:"records_stored"`
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// localTime turns a normalized axis timestamp back into an instant carrying
// loc's real offset.
func localTime(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	return store.Instant(t, loc).In(loc)
}

func newCurrentView(r models.AggregatedReading, loc *time.Location) CurrentView {
	if r.Empty() {
		return CurrentView{}
	}
	return CurrentView{
		Available:          true,
		Timestamp:          localTime(r.Timestamp, loc),
		Stations:           r.Stations,
		AirTemperature:     nullable(r.AirTemperature),
		WaterTemperature:   nullable(r.WaterTemperature),
		WindSpeed:          nullable(r.WindSpeed),
		WindForce:          nullable(r.WindForce),
		WindDirection:      nullable(r.WindDirection),
		WindCompass:        r.WindCompass,
		BarometricPressure: nullable(r.BarometricPressure),
	}
}

// NewForecastView renders snap with timestamps in loc. A nil snapshot is an
// unavailable forecast.
func NewForecastView(snap *forecast.Snapshot, loc *time.Location) ForecastView {
	if snap == nil {
		return ForecastView{Points: []forecast.Point{}}
	}
	points := make([]forecast.Point, len(snap.Series.Points))
	for i, p := range snap.Series.Points {
		points[i] = forecast.Point{Timestamp: localTime(p.Timestamp, loc), AirTemperature: p.AirTemperature}
	}
	return ForecastView{
		Available:  true,
		ID:         snap.ID.String(),
		AnalogDate: localTime(snap.AnalogDate, loc),
		ComputedAt: snap.ComputedAt,
		Offset:     snap.Series.Offset,
		Corrected:  snap.Series.Corrected,
		Points:     points,
	}
}

func newIngestRunView(run store.IngestRun) IngestRunView {
	v := IngestRunView{
		ID:            run.ID,
		StartedAt:     run.StartedAt,
		Source:        run.Source,
		Endpoint:      run.Endpoint,
		StationID:     run.StationID.String,
		HTTPStatus:    run.HTTPStatus.Int64,
		RecordsStored: run.RecordsStored.Int64,
		Success:       run.Success,
		Error:         run.ErrorMessage.String,
	}
	if run.FinishedAt.Valid {
		t := run.FinishedAt.Time
		v.FinishedAt = &t
	}
	return v
}
