// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package handle defines the boundary between the lifecycle core and the
// backend that owns the actual media pipeline.
package handle

import (
	"context"
	"errors"

	"github.com/ManuGH/mediarun/internal/pipeline/model"
)

var (
	// ErrNotStarted is returned by backends asked to stop a pipeline that never started.
	ErrNotStarted = errors.New("pipeline not started")
	// ErrAlreadyStarted is returned by backends on a second Start call.
	ErrAlreadyStarted = errors.New("pipeline already started")
	// ErrForceStopUnsupported is returned when a backend cannot be force-stopped.
	ErrForceStopUnsupported = errors.New("force stop not supported by backend")
)

// Handle is the pipeline surface the lifecycle core depends on.
// Implementations need not be goroutine-safe; wrap them in Serialized.
type Handle interface {
	// Start transitions the pipeline to running. Called exactly once.
	Start(ctx context.Context) error
	// RequestGracefulStop injects end-of-stream and returns without waiting.
	RequestGracefulStop() error
	// PollStatus pops the next pending bus status. Never blocks.
	PollStatus() (model.Status, bool)
	// RecomputeLatency is best-effort.
	RecomputeLatency() error
	// SetStopped transitions the pipeline to the fully stopped state.
	SetStopped() error
}

// ForceStopper is implemented by backends that can abort without flushing.
type ForceStopper interface {
	ForceStop() error
}

// GraphDumper is implemented by backends able to describe their processing graph.
type GraphDumper interface {
	DumpGraph() ([]byte, error)
}

// ForceStop aborts h if it supports it.
func ForceStop(h Handle) error {
	if fs, ok := h.(ForceStopper); ok {
		return fs.ForceStop()
	}
	return ErrForceStopUnsupported
}
