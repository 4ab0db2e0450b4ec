// Package config defines the global configuration for the CityPulse daemon.
// Configuration is loaded once at process startup and is immutable
// thereafter. It follows 12-Factor principles: all values come from the
// environment (optionally seeded from a .env file), and any missing required
// value or invalid format fails the process immediately.
//
// Resolution priority: OS environment (highest) -> dotenv file.
package config

import "time"

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Ops      OpsConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Sources  SourcesConfig
	Schedule ScheduleConfig
	Eval     EvalConfig
	Retain   RetentionConfig
}

// OpsConfig holds the operational HTTP surface settings. The ops server
// exposes job status and health; it is not user-facing.
type OpsConfig struct {
	Addr string `envconfig:"OPS_ADDR" default:":8090"`
}

// DatabaseConfig holds PostgreSQL connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// RedisConfig holds the search-index Redis connection settings.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// QueueConfig holds notification queue and metrics settings.
type QueueConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"ap-northeast-2"`
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`

	// LocalStack support; empty in production.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`

	// MetricsNamespace is the CloudWatch namespace for publish metrics.
	// Empty disables metric emission.
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"CityPulse/Notifications"`
}

// SourcesConfig holds upstream open-API access settings shared by all
// source adapters.
type SourcesConfig struct {
	BaseURL string `envconfig:"OPENAPI_BASE_URL" validate:"required,url"`
	APIKey  string `envconfig:"OPENAPI_KEY" validate:"required"`

	// FetchTimeout bounds each upstream HTTP call. A timeout is treated as
	// a recoverable source failure, never a fatal error.
	FetchTimeout time.Duration `envconfig:"SOURCE_FETCH_TIMEOUT" default:"20s"`
	PageSize     int           `envconfig:"SOURCE_PAGE_SIZE" default:"1000"`
	UserAgent    string        `envconfig:"SOURCE_USER_AGENT" default:"CityPulse-Ingest/1.0"`
}

// ScheduleConfig holds one cron expression per job key. Defaults document
// the standard cadence; operators override individual jobs via environment.
type ScheduleConfig struct {
	Weather        string `envconfig:"CRON_INGEST_WEATHER" default:"*/10 * * * *"`
	AirQuality     string `envconfig:"CRON_INGEST_AIR_QUALITY" default:"*/15 * * * *"`
	BikeShare      string `envconfig:"CRON_INGEST_BIKE_SHARE" default:"*/5 * * * *"`
	Culture        string `envconfig:"CRON_INGEST_CULTURE" default:"0 * * * *"`
	CoolingShelter string `envconfig:"CRON_INGEST_COOLING_SHELTER" default:"*/30 * * * *"`
	Facilities     string `envconfig:"CRON_INGEST_FACILITIES" default:"30 5 * * *"`
	IndexSync      string `envconfig:"CRON_INDEX_SYNC" default:"*/20 * * * *"`
	Cleanup        string `envconfig:"CRON_NOTIFICATION_CLEANUP" default:"45 3 * * *"`
}

// EvalConfig holds trigger evaluation tuning.
type EvalConfig struct {
	// DefaultRadiusKM applies to interests that set a location but no radius.
	DefaultRadiusKM float64 `envconfig:"EVAL_DEFAULT_RADIUS_KM" default:"2"`
}

// RetentionConfig bounds how long ephemeral data is kept before the cleanup
// job prunes it.
type RetentionConfig struct {
	JobHistory  time.Duration `envconfig:"RETAIN_JOB_HISTORY" default:"720h"`
	DeadLetters time.Duration `envconfig:"RETAIN_DEAD_LETTERS" default:"336h"`
	RawPayloads time.Duration `envconfig:"RETAIN_RAW_PAYLOADS" default:"72h"`
}
