// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the egmd process configuration and the
// disable-rule file.
package config

import "time"

// Environment keys. All keys share the EGM_ prefix.
const (
	EnvLogLevel         = "EGM_LOG_LEVEL"
	EnvLogService       = "EGM_LOG_SERVICE"
	EnvLocale           = "EGM_LOCALE"
	EnvMetricsAddr      = "EGM_METRICS_ADDR"
	EnvRulesPath        = "EGM_RULES_PATH"
	EnvJournalPath      = "EGM_JOURNAL_PATH"
	EnvPublishTimeout   = "EGM_PUBLISH_TIMEOUT"
	EnvDeviceName       = "EGM_DEVICE_NAME"
	EnvBreakerThreshold = "EGM_DEVICE_BREAKER_THRESHOLD"
	EnvBreakerReset     = "EGM_DEVICE_BREAKER_RESET"
	EnvOTelEnabled      = "EGM_OTEL_ENABLED"
	EnvOTelExporter     = "EGM_OTEL_EXPORTER"
	EnvOTelEndpoint     = "EGM_OTEL_ENDPOINT"
	EnvOTelSamplingRate = "EGM_OTEL_SAMPLING_RATE"
)

// AppConfig is the resolved process configuration.
type AppConfig struct {
	Version        string
	LogLevel       string
	LogService     string
	Locale         string
	MetricsAddr    string
	RulesPath      string
	JournalPath    string // empty disables the SQLite journal
	PublishTimeout time.Duration
	Device         DeviceConfig
	Telemetry      TelemetryConfig
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string // grpc or http
	Endpoint     string
	SamplingRate float64
}

// DeviceConfig configures the guarded peripheral.
type DeviceConfig struct {
	Name             string
	BreakerThreshold int
	BreakerReset     time.Duration
}

// FileConfig is the on-disk YAML shape. Zero values (and nil pointers) mean
// "not set" and leave the default in place.
type FileConfig struct {
	LogLevel       string           `yaml:"logLevel"`
	LogService     string           `yaml:"logService"`
	Locale         string           `yaml:"locale"`
	MetricsAddr    string           `yaml:"metricsAddr"`
	RulesPath      string           `yaml:"rulesPath"`
	JournalPath    string           `yaml:"journalPath"`
	PublishTimeout string           `yaml:"publishTimeout"`
	Device         DeviceFileConfig `yaml:"device"`
	Telemetry      TelemetryFile    `yaml:"telemetry"`
}

// TelemetryFile is the YAML shape of TelemetryConfig.
type TelemetryFile struct {
	Enabled      *bool    `yaml:"enabled"`
	Exporter     string   `yaml:"exporter"`
	Endpoint     string   `yaml:"endpoint"`
	SamplingRate *float64 `yaml:"samplingRate"`
}

// DeviceFileConfig is the YAML shape of DeviceConfig.
type DeviceFileConfig struct {
	Name             string `yaml:"name"`
	BreakerThreshold int    `yaml:"breakerThreshold"`
	BreakerReset     string `yaml:"breakerReset"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:       "info",
		LogService:     "egmd",
		Locale:         "en",
		MetricsAddr:    ":9464",
		PublishTimeout: 2 * time.Second,
		Device: DeviceConfig{
			Name:             "note-acceptor",
			BreakerThreshold: 3,
			BreakerReset:     10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
