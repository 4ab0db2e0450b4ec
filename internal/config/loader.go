package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"citypulse/internal/types"
)

// Load loads and validates the CityPulse configuration.
//
// Sequence:
//  1. Enforce UTC process-wide to prevent drift bugs in snapshot timestamps
//     and cron schedules.
//  2. Load a .env file if present (non-fatal if missing; never overrides
//     existing environment variables).
//  3. Process envconfig struct tags into the Config struct.
//  4. Validate the populated struct; fail fast on any violation.
func Load() (*Config, error) {
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "failed to process environment configuration", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "configuration validation failed", err)
	}

	if err := validateSchedule(cfg.Schedule); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateSchedule checks that every configured cron expression is non-empty.
// Expression syntax itself is validated by the scheduler at registration,
// where a parse failure names the offending job key.
func validateSchedule(s ScheduleConfig) error {
	entries := map[string]string{
		"CRON_INGEST_WEATHER":         s.Weather,
		"CRON_INGEST_AIR_QUALITY":     s.AirQuality,
		"CRON_INGEST_BIKE_SHARE":      s.BikeShare,
		"CRON_INGEST_CULTURE":         s.Culture,
		"CRON_INGEST_COOLING_SHELTER": s.CoolingShelter,
		"CRON_INGEST_FACILITIES":      s.Facilities,
		"CRON_INDEX_SYNC":             s.IndexSync,
		"CRON_NOTIFICATION_CLEANUP":   s.Cleanup,
	}
	for name, expr := range entries {
		if expr == "" {
			return types.NewAppError(types.ErrCodeConfigInvalid,
				fmt.Sprintf("%s must not be empty", name), nil)
		}
	}
	return nil
}
