// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package lifecycle runs a pipeline to completion and arbitrates between
// natural end-of-stream and an external interrupt.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/mediarun/internal/log"
	"github.com/ManuGH/mediarun/internal/metrics"
	"github.com/ManuGH/mediarun/internal/pipeline/bus"
	"github.com/ManuGH/mediarun/internal/pipeline/handle"
	"github.com/ManuGH/mediarun/internal/pipeline/model"
	"github.com/ManuGH/mediarun/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPollInterval is the backoff between polls of an idle bus.
	DefaultPollInterval = 10 * time.Millisecond

	// maxDrain bounds the final bus drain after end-of-stream.
	maxDrain = 1024

	tracerName = "github.com/ManuGH/mediarun/internal/pipeline/lifecycle"
)

// Options configures a Coordinator.
type Options struct {
	// PollInterval is the sleep between polls when the bus is empty.
	PollInterval time.Duration
	// StopTimeout escalates to a forced stop when a graceful stop has not
	// drained the pipeline in time. Zero waits indefinitely.
	StopTimeout time.Duration
	// Observer receives every emitted command in bus order, from the polling goroutine.
	Observer func(model.Command)
	// Snapshotter enables diagnostic snapshots in the dispatcher.
	Snapshotter bus.Snapshotter
	// Backend names the pipeline implementation for logs and traces.
	Backend string
	Logger  *zerolog.Logger
}

// Report describes a finished run.
type Report struct {
	RunID     string
	Backend   string
	Outcome   model.Outcome
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
	Commands  []model.Command
	// ForcedStop is true when the stop timeout escalated to a forced stop.
	ForcedStop bool
}

// Coordinator owns one pipeline run.
type Coordinator struct {
	h    *handle.Serialized
	d    *bus.Dispatcher
	opts Options

	logger  zerolog.Logger
	machine *machine

	// eosSeen is guarded by the handle lock.
	eosSeen  bool
	commands []model.Command
}

// New builds a coordinator around h. h must not be used by the caller afterwards.
func New(h handle.Handle, opts Options) (*Coordinator, error) {
	if h == nil {
		return nil, ErrMissingHandle
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := log.WithComponent("lifecycle")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	c := &Coordinator{
		h:       handle.NewSerialized(h),
		opts:    opts,
		logger:  logger,
		machine: newMachine(),
	}
	c.machine.OnTransition(func(from, to model.LifecycleState, ev model.LifecycleEvent) {
		c.logger.Debug().
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Str(log.FieldEvent, string(ev)).
			Msg("lifecycle transition")
	})
	return c, nil
}

func (c *Coordinator) newDispatcher(ctx context.Context) *bus.Dispatcher {
	busLogger := log.WithComponentFromContext(ctx, "bus")
	if c.opts.Logger != nil {
		busLogger = c.logger
	}
	opts := []bus.Option{bus.WithLogger(busLogger)}
	if c.opts.Snapshotter != nil {
		opts = append(opts, bus.WithSnapshotter(c.opts.Snapshotter))
	}
	return bus.NewDispatcher(opts...)
}

// State returns the coordinator lifecycle state.
func (c *Coordinator) State() model.LifecycleState {
	return c.machine.State()
}

// Run starts the pipeline and blocks until it has stopped. Cancelling ctx is
// the external interrupt: the pipeline is asked to stop gracefully and Run
// still waits for it to drain before returning. A non-nil error is returned
// exactly when the outcome is OutcomeFaulted. Run must be called once.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	rep := Report{
		RunID:     uuid.NewString(),
		Backend:   c.opts.Backend,
		StartedAt: time.Now(),
	}
	ctx = log.ContextWithRunID(ctx, rep.RunID)
	c.logger = log.WithContext(ctx, c.logger)
	c.d = c.newDispatcher(ctx)

	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "pipeline.run",
		trace.WithAttributes(telemetry.RunAttributes(rep.RunID, rep.Backend)...))
	defer span.End()

	err := c.run(ctx, span, &rep)

	rep.EndedAt = time.Now()
	rep.Commands = c.commands
	rep.Err = err
	if err != nil {
		rep.Outcome = model.OutcomeFaulted
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(telemetry.OutcomeAttributes(string(rep.Outcome), len(rep.Commands))...)
	metrics.ObserveRun(string(rep.Outcome), rep.EndedAt.Sub(rep.StartedAt))

	ev := c.logger.Info()
	if err != nil {
		ev = c.logger.Error().Err(err)
	}
	ev.Str(log.FieldEvent, "pipeline.run_finished").
		Str(log.FieldOutcome, string(rep.Outcome)).
		Dur("duration", rep.EndedAt.Sub(rep.StartedAt)).
		Int("commands", len(rep.Commands)).
		Msg("pipeline run finished")
	return rep, err
}

func (c *Coordinator) run(ctx context.Context, span trace.Span, rep *Report) error {
	// The interrupt must not reach the backend's start path; stopping is
	// always done through a graceful stop request.
	if err := c.h.Start(context.WithoutCancel(ctx)); err != nil {
		c.fire(model.EventStartFailed)
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	c.fire(model.EventStarted)
	c.logger.Info().Str(log.FieldEvent, "pipeline.start_requested").Msg("pipeline start requested")

	pollDone := make(chan struct{})
	abort := make(chan struct{})
	cancelled := false

	var g errgroup.Group
	g.Go(func() error {
		defer close(pollDone)
		return c.poll(abort)
	})
	g.Go(func() error {
		select {
		case <-pollDone:
			return nil
		case <-ctx.Done():
		}

		requested, err := c.requestStop()
		if !requested {
			return err
		}
		cancelled = true
		span.AddEvent("graceful_stop_requested")
		if err != nil {
			close(abort)
			return err
		}
		forced, err := c.awaitDrain(pollDone)
		if forced {
			rep.ForcedStop = true
			span.AddEvent("forced_stop")
			close(abort)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		c.fire(model.EventFault)
		return err
	}

	if cancelled {
		rep.Outcome = model.OutcomeFinishedByCancellation
	} else {
		c.fire(model.EventEOS)
		rep.Outcome = model.OutcomeFinishedNaturally
	}
	c.fire(model.EventDrained)
	return nil
}

// requestStop asks the pipeline to stop gracefully. It reports false when the
// pipeline already reached end-of-stream on its own, in which case the
// interrupt is ignored.
func (c *Coordinator) requestStop() (bool, error) {
	var (
		skipped bool
		err     error
	)
	c.h.Do(func(h handle.Handle) {
		if c.eosSeen {
			skipped = true
			return
		}
		c.logger.Info().Str(log.FieldEvent, "interrupt.received").Msg("interrupt received, requesting graceful stop")
		err = h.RequestGracefulStop()
	})
	if skipped {
		c.logger.Debug().Msg("interrupt arrived after end-of-stream, ignoring")
		return false, nil
	}

	c.fire(model.EventCancel)
	if err == nil {
		metrics.IncStopRequest("graceful", "ok")
		c.fire(model.EventStopRequested)
		c.logger.Info().Str(log.FieldEvent, "pipeline.graceful_stop").Msg("sent end-of-stream, waiting for pipeline to drain")
		return true, nil
	}

	metrics.IncStopRequest("graceful", "error")
	c.logger.Warn().Err(err).Msg("graceful stop request failed, forcing stop")
	if ferr := c.h.ForceStop(); ferr != nil {
		metrics.IncStopRequest("force", "error")
		return true, fmt.Errorf("%w: graceful: %w; force: %w", ErrStopFailed, err, ferr)
	}
	metrics.IncStopRequest("force", "ok")
	return true, fmt.Errorf("%w: graceful stop failed: %w", ErrForcedStop, err)
}

// awaitDrain waits for the polling task after a graceful stop. With a stop
// timeout it escalates once to a forced stop.
func (c *Coordinator) awaitDrain(pollDone <-chan struct{}) (bool, error) {
	if c.opts.StopTimeout <= 0 {
		<-pollDone
		return false, nil
	}

	timer := time.NewTimer(c.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-pollDone:
		return false, nil
	case <-timer.C:
	}

	c.logger.Warn().
		Dur("stop_timeout", c.opts.StopTimeout).
		Msg("pipeline did not drain after graceful stop, forcing stop")
	if err := c.h.ForceStop(); err != nil {
		metrics.IncStopRequest("force", "error")
		return true, fmt.Errorf("%w: %w", ErrStopFailed, err)
	}
	metrics.IncStopRequest("force", "ok")
	return true, ErrForcedStop
}

// poll drives the dispatcher until end-of-stream or abort.
func (c *Coordinator) poll(abort <-chan struct{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPollPanicked, r)
		}
	}()

	timer := time.NewTimer(c.opts.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-abort:
			c.drain()
			return nil
		default:
		}

		res := c.step()
		if res.Emitted {
			switch res.Command {
			case model.CommandEOS:
				c.drain()
				return nil
			case model.CommandError:
				c.logger.Warn().Msg("pipeline reported an error, waiting for end-of-stream")
			}
		}
		if !res.Idle {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.opts.PollInterval)
		select {
		case <-abort:
			c.drain()
			return nil
		case <-timer.C:
		}
	}
}

// drain consumes what is already on the bus, so the stopped transition
// following end-of-stream is observed before the run returns.
func (c *Coordinator) drain() {
	for i := 0; i < maxDrain; i++ {
		if c.step().Idle {
			return
		}
	}
	c.logger.Warn().Int("limit", maxDrain).Msg("bus still busy after end-of-stream, giving up drain")
}

func (c *Coordinator) step() bus.Result {
	var res bus.Result
	c.h.Do(func(h handle.Handle) {
		res = c.d.Step(h)
		if res.Emitted && res.Command == model.CommandEOS {
			c.eosSeen = true
		}
	})
	if res.Emitted {
		c.commands = append(c.commands, res.Command)
		if c.opts.Observer != nil {
			c.opts.Observer(res.Command)
		}
	}
	return res
}

func (c *Coordinator) fire(ev model.LifecycleEvent) {
	if _, err := c.machine.Fire(ev); err != nil {
		c.logger.Error().Err(err).Msg("unexpected lifecycle transition")
	}
}

// IsForcedStop reports whether err describes a forced stop.
func IsForcedStop(err error) bool {
	return errors.Is(err, ErrForcedStop)
}
