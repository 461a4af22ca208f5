// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command mediarun runs one media pipeline to completion and exits with the
// outcome of the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ManuGH/mediarun/internal/config"
	"github.com/ManuGH/mediarun/internal/diagnostics"
	"github.com/ManuGH/mediarun/internal/interrupt"
	"github.com/ManuGH/mediarun/internal/journal"
	"github.com/ManuGH/mediarun/internal/log"
	"github.com/ManuGH/mediarun/internal/metrics"
	"github.com/ManuGH/mediarun/internal/pipeline/lifecycle"
	"github.com/ManuGH/mediarun/internal/telemetry"
	"github.com/ManuGH/mediarun/internal/version"
	"golang.org/x/sync/errgroup"
)

const (
	exitOK     = 0
	exitFault  = 1
	exitConfig = 2
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(exitOK)
	}
	os.Exit(run(strings.TrimSpace(*configPath)))
}

func run(configPath string) int {
	// Safe defaults until config is loaded
	log.Configure(log.Config{
		Level:   config.DefaultLogLevel,
		Service: config.DefaultLogService,
		Version: version.Version,
	})
	logger := log.WithComponent("main")

	cfg, err := config.NewLoader(configPath, version.Version).Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str(log.FieldPath, configPath).
			Msg("failed to load configuration")
		return exitConfig
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = log.WithComponent("main")
	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str("source", source).
		Str(log.FieldBackend, string(cfg.Backend)).
		Msg("loaded configuration")

	ctx := context.Background()
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
	})
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "telemetry.init_failed").Msg("failed to initialise tracing")
		return exitFault
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "telemetry.shutdown_failed").Msg("failed to flush traces")
		}
	}()

	h, closeHandle, err := newHandle(cfg)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "pipeline.build_failed").Msg("failed to build pipeline")
		return exitFault
	}
	defer closeHandle()

	opts := lifecycle.Options{
		PollInterval: cfg.PollInterval,
		StopTimeout:  cfg.StopTimeout,
		Backend:      string(cfg.Backend),
	}
	if cfg.Diagnostics.Dir != "" {
		sink, err := diagnostics.New(cfg.Diagnostics.Dir, cfg.Diagnostics.MaxPerSecond)
		if err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "diagnostics.init_failed").Msg("failed to prepare diagnostics directory")
			return exitFault
		}
		opts.Snapshotter = sink
	}

	var store *journal.Store
	if cfg.Journal.Path != "" {
		store, err = journal.Open(ctx, cfg.Journal.Path)
		if err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "journal.open_failed").Str(log.FieldPath, cfg.Journal.Path).Msg("failed to open run journal")
			return exitFault
		}
		defer store.Close()
	}

	coord, err := lifecycle.New(h, opts)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create lifecycle coordinator")
		return exitFault
	}

	runCtx, release, err := interrupt.Listen(ctx, interrupt.Options{StopFile: cfg.StopFile})
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "interrupt.init_failed").Msg("failed to install interrupt listeners")
		return exitFault
	}
	defer release()

	rep := runWithMetrics(ctx, cfg.Metrics.ListenAddr, func() lifecycle.Report {
		rep, _ := coord.Run(runCtx)
		return rep
	})

	if store != nil {
		if err := store.Record(ctx, journal.FromReport(rep)); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "journal.record_failed").Msg("failed to record run")
		}
	}
	if cause, ok := interrupt.Cause(runCtx); ok {
		logger.Info().
			Str(log.FieldEvent, "pipeline.interrupted").
			Str(log.FieldSource, string(cause.Source)).
			Msg("run ended after interrupt")
	}
	return rep.Outcome.ExitCode()
}

// runWithMetrics serves metrics on addr for the duration of fn. An empty addr
// disables the endpoint. A failing endpoint is logged and does not affect the run.
func runWithMetrics(ctx context.Context, addr string, fn func() lifecycle.Report) lifecycle.Report {
	if addr == "" {
		return fn()
	}
	logger := log.WithComponent("metrics")
	serveCtx, stop := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		return metrics.Serve(serveCtx, logger, addr)
	})

	rep := fn()
	stop()
	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "metrics.serve_failed").Msg("metrics endpoint failed")
	}
	return rep
}
