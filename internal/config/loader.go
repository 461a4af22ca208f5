// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEDIARUN_"

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envFields(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFields(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if cfg.Diagnostics.Dir == "" {
		cfg.Diagnostics.Dir = os.Getenv(EnvDotDumpDir)
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the configuration used when neither file nor environment set a key.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:     DefaultLogLevel,
		LogService:   DefaultLogService,
		Backend:      BackendProcess,
		Process:      ProcessConfig{Bin: DefaultProcessBin},
		PollInterval: DefaultPollInterval,
		Diagnostics:  DiagnosticsConfig{MaxPerSecond: DefaultSnapshotsPerSec},
		Tracing: TracingConfig{
			Exporter: DefaultTracingExporter,
			Endpoint: DefaultTracingEndpoint,
		},
	}
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingContent
	}

	return &fileCfg, nil
}

// LoadFileConfig loads a YAML config file without applying defaults or env overrides.
func LoadFileConfig(path string) (*FileConfig, error) {
	return NewLoader(path, "").loadFile(path)
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.LogService != "" {
		cfg.LogService = f.LogService
	}
	if f.Backend != "" {
		cfg.Backend = Backend(f.Backend)
	}
	if f.StopFile != "" {
		cfg.StopFile = expandEnv(f.StopFile)
	}

	var err error
	if cfg.PollInterval, err = fileDuration("pollInterval", f.PollInterval, cfg.PollInterval); err != nil {
		return err
	}
	if cfg.StopTimeout, err = fileDuration("stopTimeout", f.StopTimeout, cfg.StopTimeout); err != nil {
		return err
	}

	if f.Process.Bin != "" {
		cfg.Process.Bin = f.Process.Bin
	}
	if len(f.Process.Args) > 0 {
		cfg.Process.Args = append([]string(nil), f.Process.Args...)
	}
	if f.GST.Launch != "" {
		cfg.GST.Launch = f.GST.Launch
	}

	if f.Diagnostics.Dir != "" {
		cfg.Diagnostics.Dir = expandEnv(f.Diagnostics.Dir)
	}
	if f.Diagnostics.MaxPerSecond != nil {
		cfg.Diagnostics.MaxPerSecond = *f.Diagnostics.MaxPerSecond
	}
	if f.Journal.Path != "" {
		cfg.Journal.Path = expandEnv(f.Journal.Path)
	}
	if f.Metrics.ListenAddr != "" {
		cfg.Metrics.ListenAddr = f.Metrics.ListenAddr
	}

	if f.Tracing.Enabled != nil {
		cfg.Tracing.Enabled = *f.Tracing.Enabled
	}
	if f.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = f.Tracing.Exporter
	}
	if f.Tracing.Endpoint != "" {
		cfg.Tracing.Endpoint = f.Tracing.Endpoint
	}
	return nil
}

func fileDuration(key, raw string, current time.Duration) (time.Duration, error) {
	if raw == "" {
		return current, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return current, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString(EnvPrefix+"LOG_SERVICE", cfg.LogService)
	cfg.Backend = Backend(l.envString(EnvPrefix+"BACKEND", string(cfg.Backend)))

	cfg.Process.Bin = l.envString(EnvPrefix+"PROCESS_BIN", cfg.Process.Bin)
	cfg.Process.Args = l.envFields(EnvPrefix+"PROCESS_ARGS", cfg.Process.Args)
	cfg.GST.Launch = l.envString(EnvPrefix+"GST_LAUNCH", cfg.GST.Launch)

	cfg.PollInterval = l.envDuration(EnvPrefix+"POLL_INTERVAL", cfg.PollInterval)
	cfg.StopTimeout = l.envDuration(EnvPrefix+"STOP_TIMEOUT", cfg.StopTimeout)
	cfg.StopFile = l.envString(EnvPrefix+"STOP_FILE", cfg.StopFile)

	cfg.Diagnostics.Dir = l.envString(EnvPrefix+"DIAGNOSTICS_DIR", cfg.Diagnostics.Dir)
	cfg.Diagnostics.MaxPerSecond = l.envFloat(EnvPrefix+"DIAGNOSTICS_MAX_PER_SECOND", cfg.Diagnostics.MaxPerSecond)
	cfg.Journal.Path = l.envString(EnvPrefix+"JOURNAL_PATH", cfg.Journal.Path)
	cfg.Metrics.ListenAddr = l.envString(EnvPrefix+"METRICS_LISTEN_ADDR", cfg.Metrics.ListenAddr)

	cfg.Tracing.Enabled = l.envBool(EnvPrefix+"TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = l.envString(EnvPrefix+"TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = l.envString(EnvPrefix+"TRACING_ENDPOINT", cfg.Tracing.Endpoint)
}
