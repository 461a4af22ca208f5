// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Backend names a pipeline implementation.
type Backend string

const (
	BackendProcess Backend = "process"
	BackendGST     Backend = "gst"
)

// Defaults
const (
	DefaultLogLevel        = "info"
	DefaultLogService      = "mediarun"
	DefaultProcessBin      = "ffmpeg"
	DefaultPollInterval    = 10 * time.Millisecond
	DefaultSnapshotsPerSec = 5.0
	DefaultTracingExporter = "grpc"
	DefaultTracingEndpoint = "localhost:4317"

	// EnvDotDumpDir is the GStreamer debug variable honoured as a fallback
	// for diagnostics.dir.
	EnvDotDumpDir = "GST_DEBUG_DUMP_DOT_DIR"
)

// AppConfig is the effective runtime configuration.
type AppConfig struct {
	Version    string
	LogLevel   string
	LogService string

	Backend Backend
	Process ProcessConfig
	GST     GSTConfig

	// PollInterval is the idle backoff of the bus polling loop.
	PollInterval time.Duration
	// StopTimeout escalates a graceful stop to a forced one. Zero waits forever.
	StopTimeout time.Duration
	// StopFile triggers a graceful stop when it appears.
	StopFile string

	Diagnostics DiagnosticsConfig
	Journal     JournalConfig
	Metrics     MetricsConfig
	Tracing     TracingConfig
}

// ProcessConfig configures the external process backend.
type ProcessConfig struct {
	Bin  string
	Args []string
}

// GSTConfig configures the GStreamer backend.
type GSTConfig struct {
	Launch string
}

// DiagnosticsConfig configures state-change snapshots. Empty Dir disables them.
type DiagnosticsConfig struct {
	Dir          string
	MaxPerSecond float64
}

// JournalConfig configures the SQLite run journal. Empty Path disables it.
type JournalConfig struct {
	Path string
}

// MetricsConfig configures the Prometheus endpoint. Empty ListenAddr disables it.
type MetricsConfig struct {
	ListenAddr string
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled  bool
	Exporter string
	Endpoint string
}

// FileConfig represents the YAML configuration structure
type FileConfig struct {
	LogLevel     string `yaml:"logLevel,omitempty"`
	LogService   string `yaml:"logService,omitempty"`
	Backend      string `yaml:"backend,omitempty"`
	PollInterval string `yaml:"pollInterval,omitempty"` // e.g. "10ms"
	StopTimeout  string `yaml:"stopTimeout,omitempty"`  // e.g. "30s"
	StopFile     string `yaml:"stopFile,omitempty"`

	Process     ProcessFileConfig     `yaml:"process,omitempty"`
	GST         GSTFileConfig         `yaml:"gst,omitempty"`
	Diagnostics DiagnosticsFileConfig `yaml:"diagnostics,omitempty"`
	Journal     JournalFileConfig     `yaml:"journal,omitempty"`
	Metrics     MetricsFileConfig     `yaml:"metrics,omitempty"`
	Tracing     TracingFileConfig     `yaml:"tracing,omitempty"`
}

type ProcessFileConfig struct {
	Bin  string   `yaml:"bin,omitempty"`
	Args []string `yaml:"args,omitempty"`
}

type GSTFileConfig struct {
	Launch string `yaml:"launch,omitempty"`
}

type DiagnosticsFileConfig struct {
	Dir          string   `yaml:"dir,omitempty"`
	MaxPerSecond *float64 `yaml:"maxPerSecond,omitempty"`
}

type JournalFileConfig struct {
	Path string `yaml:"path,omitempty"`
}

type MetricsFileConfig struct {
	ListenAddr string `yaml:"listenAddr,omitempty"`
}

type TracingFileConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Exporter string `yaml:"exporter,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}
