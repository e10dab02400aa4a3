// Package config holds the command line and environment configuration.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lox/wettermonitor/internal/forecast"
)

type Config struct {
	DBPath   string   `name:"db" default:"data/wettermonitor.db" env:"WETTER_DB" help:"Path to SQLite database." validate:"required"`
	Timezone string   `default:"Europe/Zurich" env:"WETTER_TIMEZONE" help:"Zone every timestamp is normalized into." validate:"required,timezone"`
	Stations []string `default:"mythenquai,tiefenbrunnen" env:"WETTER_STATIONS" help:"Stations to sync and aggregate." validate:"min=1,dive,required"`
	Port     string   `default:"8080" env:"WETTER_PORT" help:"HTTP server port." validate:"required,numeric"`

	LookbackYears  int           `default:"8" env:"WETTER_LOOKBACK_YEARS" help:"Years searched for an analog." validate:"min=1,max=30"`
	SampleCount    int           `default:"29" env:"WETTER_SAMPLE_COUNT" help:"Samples compared per candidate." validate:"min=2,max=288"`
	Step           time.Duration `default:"10m" env:"WETTER_STEP" help:"Spacing between compared samples." validate:"min=1m"`
	Weighting      string        `default:"recency" env:"WETTER_WEIGHTING" enum:"uniform,recency" help:"Sample weighting (uniform, recency)." validate:"oneof=uniform recency"`
	CurveSamples   int           `default:"30" env:"WETTER_CURVE_SAMPLES" help:"Samples in the forecast curve." validate:"min=1"`
	PressureWindow time.Duration `default:"5h" env:"WETTER_PRESSURE_WINDOW" help:"Window for the pressure trend." validate:"min=10m"`

	RefreshInterval time.Duration `default:"60s" env:"WETTER_REFRESH_INTERVAL" help:"Forecast recompute interval." validate:"min=1s"`
	SyncInterval    time.Duration `default:"10m" env:"WETTER_SYNC_INTERVAL" help:"Upstream sync interval." validate:"min=1m"`
	Backfill        time.Duration `default:"336h" env:"WETTER_BACKFILL" help:"History fetched for a station without data." validate:"min=1h"`
	UpstreamURL     string        `default:"https://tecdottir.herokuapp.com" env:"WETTER_UPSTREAM_URL" help:"Measurement API base URL." validate:"required,url"`
	ArchiveSource   string        `default:"data" env:"WETTER_ARCHIVE" help:"Directory or ftp:// URL with messwerte_*.csv archives."`
}

var validate = validator.New()

// Validate is called by kong after parsing.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c *Config) Forecast() forecast.Config {
	return forecast.Config{
		Stations: c.Stations,
		Search: forecast.SearchParams{
			LookbackYears: c.LookbackYears,
			SampleCount:   c.SampleCount,
			Step:          c.Step,
			Weighting:     forecast.Weighting(c.Weighting),
		},
		CurveSamples:    c.CurveSamples,
		PressureWindow:  c.PressureWindow,
		RefreshInterval: c.RefreshInterval,
	}
}
