// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/mediarun/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", "must be one of trace, debug, info, warn, error", cfg.LogLevel)
	}
	v.NotEmpty("logService", cfg.LogService)

	v.OneOf("backend", string(cfg.Backend), []string{string(BackendProcess), string(BackendGST)})
	switch cfg.Backend {
	case BackendProcess:
		v.NotEmpty("process.bin", cfg.Process.Bin)
		if len(cfg.Process.Args) == 0 {
			v.AddError("process.args", "at least one argument is required", cfg.Process.Args)
		}
	case BackendGST:
		v.NotEmpty("gst.launch", cfg.GST.Launch)
	}

	v.DurationRange("pollInterval", cfg.PollInterval, time.Millisecond, time.Second)
	v.NonNegativeDuration("stopTimeout", cfg.StopTimeout)
	v.Path("stopFile", cfg.StopFile)

	if cfg.Diagnostics.Dir != "" {
		v.Directory("diagnostics.dir", cfg.Diagnostics.Dir, false)
		v.Positive("diagnostics.maxPerSecond", cfg.Diagnostics.MaxPerSecond)
	}
	v.Path("journal.path", cfg.Journal.Path)
	if cfg.Metrics.ListenAddr != "" {
		v.ListenAddr("metrics.listenAddr", cfg.Metrics.ListenAddr)
	}

	if cfg.Tracing.Enabled {
		v.OneOf("tracing.exporter", cfg.Tracing.Exporter, []string{"grpc", "http"})
		v.NotEmpty("tracing.endpoint", cfg.Tracing.Endpoint)
	}

	return v.Err()
}
