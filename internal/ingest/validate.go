package ingest

import (
	"encoding/json"

	"github.com/lox/wettermonitor/internal/models"
)

const (
	FlagAirTempOutOfRange   = "air_temp_out_of_range"
	FlagWaterTempOutOfRange = "water_temp_out_of_range"
	FlagWindDirInvalid      = "wind_dir_invalid"
	FlagWindSpeedUnlikely   = "wind_speed_unlikely"
	FlagWindForceInvalid    = "wind_force_invalid"
	FlagPressureOutOfRange  = "pressure_out_of_range"
)

// ValidateObservation returns quality flags for implausible values. Flagged
// observations are still stored.
func ValidateObservation(obs *models.Observation) []string {
	var flags []string

	if obs.AirTemperature.Valid {
		if obs.AirTemperature.Float64 < -30 || obs.AirTemperature.Float64 > 45 {
			flags = append(flags, FlagAirTempOutOfRange)
		}
	}

	if obs.WaterTemperature.Valid {
		if obs.WaterTemperature.Float64 < -1 || obs.WaterTemperature.Float64 > 35 {
			flags = append(flags, FlagWaterTempOutOfRange)
		}
	}

	if obs.WindDirection.Valid {
		if obs.WindDirection.Float64 < 0 || obs.WindDirection.Float64 > 360 {
			flags = append(flags, FlagWindDirInvalid)
		}
	}

	if obs.WindSpeed.Valid {
		if obs.WindSpeed.Float64 < 0 || obs.WindSpeed.Float64 > 60 {
			flags = append(flags, FlagWindSpeedUnlikely)
		}
	}

	if obs.WindForce.Valid {
		if obs.WindForce.Float64 < 0 || obs.WindForce.Float64 > 12 {
			flags = append(flags, FlagWindForceInvalid)
		}
	}

	if obs.BarometricPressure.Valid {
		if obs.BarometricPressure.Float64 < 850 || obs.BarometricPressure.Float64 > 1100 {
			flags = append(flags, FlagPressureOutOfRange)
		}
	}

	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
