// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus translates pipeline bus messages into lifecycle commands.
package bus

import (
	"github.com/ManuGH/mediarun/internal/log"
	"github.com/ManuGH/mediarun/internal/metrics"
	"github.com/ManuGH/mediarun/internal/pipeline/handle"
	"github.com/ManuGH/mediarun/internal/pipeline/model"
	"github.com/rs/zerolog"
)

// Snapshotter receives pipeline-sourced state changes for diagnostics.
type Snapshotter interface {
	Snapshot(h handle.Handle, st model.Status) error
}

// Result is the outcome of one dispatch step.
type Result struct {
	Command model.Command
	// Emitted is false when the message did not cross a lifecycle boundary.
	Emitted bool
	// Idle is true when the bus had nothing pending.
	Idle bool
}

// Dispatcher pops one bus message per step and reduces it to a Command.
// It owns the started flag; it is not safe for concurrent use.
type Dispatcher struct {
	started     bool
	snapshotter Snapshotter
	logger      zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSnapshotter enables diagnostic snapshots on pipeline state changes.
func WithSnapshotter(s Snapshotter) Option {
	return func(d *Dispatcher) { d.snapshotter = s }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: log.WithComponent("bus")}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Started reports whether the pipeline has been observed running.
func (d *Dispatcher) Started() bool {
	return d.started
}

// Dispatch handles at most one pending message. It never blocks; an empty bus
// yields no command.
func (d *Dispatcher) Dispatch(h handle.Handle) (model.Command, bool) {
	r := d.Step(h)
	return r.Command, r.Emitted
}

// Step is Dispatch that also reports whether the bus was empty.
func (d *Dispatcher) Step(h handle.Handle) Result {
	st, ok := h.PollStatus()
	if !ok {
		return Result{Idle: true}
	}
	metrics.IncBusStatus(string(st.Kind))

	cmd, emitted := d.translate(h, st)
	if emitted {
		metrics.IncBusCommand(string(cmd))
	}
	return Result{Command: cmd, Emitted: emitted}
}

func (d *Dispatcher) translate(h handle.Handle, st model.Status) (model.Command, bool) {
	switch st.Kind {
	case model.StatusError:
		d.logger.Error().
			Str("event", "bus.error").
			Str(log.FieldSource, orNone(st.Source)).
			Str(log.FieldMessage, st.Message).
			Str(log.FieldDebug, orNone(st.Debug)).
			Msg("error from element")
		return model.CommandError, true

	case model.StatusWarning:
		d.logger.Warn().
			Str("event", "bus.warning").
			Str(log.FieldSource, orNone(st.Source)).
			Str(log.FieldDebug, orNone(st.Debug)).
			Msg(st.Message)

	case model.StatusLatency:
		if err := h.RecomputeLatency(); err != nil {
			metrics.IncBestEffortFailure("recompute_latency")
			d.logger.Debug().Err(err).Msg("latency recomputation failed")
		}

	case model.StatusStateChanged:
		return d.stateChanged(h, st)

	case model.StatusEOS:
		d.logger.Info().Str("event", "bus.eos").Msg("saw end-of-stream, stopping pipeline")
		if err := h.SetStopped(); err != nil {
			metrics.IncBestEffortFailure("set_stopped")
			d.logger.Error().Err(err).Str("event", "bus.eos_stop_failed").Msg("failed to stop pipeline after end-of-stream")
			return "", false
		}
		return model.CommandEOS, true

	default:
		d.logger.Debug().Str("kind", string(st.Kind)).Msg("ignoring bus message")
	}
	return "", false
}

func (d *Dispatcher) stateChanged(h handle.Handle, st model.Status) (model.Command, bool) {
	if !st.FromPipeline {
		return "", false
	}
	if d.snapshotter != nil {
		if err := d.snapshotter.Snapshot(h, st); err != nil {
			metrics.IncBestEffortFailure("diagnostics_snapshot")
			d.logger.Warn().Err(err).Msg("diagnostic snapshot failed")
		}
	}

	switch {
	case st.Current == model.StateNull && d.started:
		d.started = false
		d.logger.Info().
			Str("event", "pipeline.ended").
			Str(log.FieldOldState, string(st.Old)).
			Str(log.FieldNewState, string(st.Current)).
			Msg("pipeline ended")
		return model.CommandEnded, true
	case st.Current == model.StatePlaying && !d.started:
		d.started = true
		d.logger.Info().
			Str("event", "pipeline.started").
			Str(log.FieldOldState, string(st.Old)).
			Str(log.FieldNewState, string(st.Current)).
			Msg("pipeline started")
		return model.CommandStarted, true
	}

	d.logger.Debug().
		Str(log.FieldOldState, string(st.Old)).
		Str(log.FieldNewState, string(st.Current)).
		Msg("pipeline state changed")
	return "", false
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
