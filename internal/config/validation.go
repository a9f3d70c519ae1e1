// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/egmlock/internal/validate"
	"golang.org/x/text/language"
)

// Validate checks the resolved configuration and reports every problem.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("LogLevel", cfg.LogLevel, validate.LogLevels)
	v.NotEmpty("LogService", cfg.LogService)
	if _, err := language.Parse(cfg.Locale); err != nil {
		v.AddError("Locale", err.Error(), cfg.Locale)
	}
	v.ListenAddr("MetricsAddr", cfg.MetricsAddr)
	v.NotEmpty("RulesPath", cfg.RulesPath)
	v.PositiveDuration("PublishTimeout", cfg.PublishTimeout)

	v.NotEmpty("Device.Name", cfg.Device.Name)
	v.Range("Device.BreakerThreshold", cfg.Device.BreakerThreshold, 1, 100)
	v.PositiveDuration("Device.BreakerReset", cfg.Device.BreakerReset)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("Telemetry.SamplingRate", "sampling rate must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}
