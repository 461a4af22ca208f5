// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/ManuGH/mediarun/internal/config"
	"github.com/ManuGH/mediarun/internal/log"
	"github.com/ManuGH/mediarun/internal/pipeline/exec/gst"
	"github.com/ManuGH/mediarun/internal/pipeline/exec/process"
	"github.com/ManuGH/mediarun/internal/pipeline/handle"
)

// newHandle builds the configured backend. The returned cleanup releases
// backend resources after the run and is never nil.
func newHandle(cfg config.AppConfig) (handle.Handle, func(), error) {
	switch cfg.Backend {
	case config.BackendProcess:
		h, err := process.New(process.Config{
			Bin:  cfg.Process.Bin,
			Args: cfg.Process.Args,
		})
		if err != nil {
			return nil, func() {}, err
		}
		cleanup := func() {
			if err := h.Close(); err != nil {
				logger := log.WithComponent("process")
				logger.Warn().Err(err).Str(log.FieldEvent, "process.close_failed").Msg("failed to reap pipeline process")
			}
		}
		return h, cleanup, nil
	case config.BackendGST:
		if !gst.Available() {
			return nil, func() {}, fmt.Errorf("gst backend: %w (rebuild with -tags gst)", gst.ErrUnsupported)
		}
		if err := gst.Init(); err != nil {
			return nil, func() {}, fmt.Errorf("gst backend: %w", err)
		}
		h, err := gst.New(cfg.GST.Launch)
		if err != nil {
			return nil, func() {}, fmt.Errorf("gst backend: %w", err)
		}
		return h, func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
