// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package handletest provides a scripted pipeline handle for tests.
package handletest

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/mediarun/internal/pipeline/handle"
	"github.com/ManuGH/mediarun/internal/pipeline/model"
)

const pipelineSource = "/GstPipeline:pipeline0"

// Scripted is a deterministic Handle whose bus is a FIFO fed by the test.
type Scripted struct {
	mu sync.Mutex

	queue []model.Status
	calls []string

	started    bool
	stopped    bool
	forceStops int

	StartErr        error
	GracefulStopErr error
	LatencyErr      error
	ForceStopErr    error
	// SetStoppedErrs fails that many SetStopped calls before succeeding.
	SetStoppedErrs int
	SetStoppedErr  error
	// PanicOnPoll makes the next PollStatus panic with this value.
	PanicOnPoll any

	// OnGracefulStop is enqueued after GracefulStopDelay once a graceful stop succeeds.
	OnGracefulStop    []model.Status
	GracefulStopDelay time.Duration
	// OnSetStopped is enqueued once SetStopped succeeds.
	OnSetStopped []model.Status
	// OnForceStop is enqueued once ForceStop succeeds.
	OnForceStop []model.Status

	timers []*time.Timer
}

var (
	_ handle.Handle       = (*Scripted)(nil)
	_ handle.ForceStopper = (*Scripted)(nil)
)

// NewScripted returns a handle whose bus already holds statuses.
func NewScripted(statuses ...model.Status) *Scripted {
	return &Scripted{queue: append([]model.Status(nil), statuses...)}
}

// NaturalPipeline returns a handle that plays, reaches end-of-stream by itself,
// and reports the stopped transition once SetStopped is called.
func NaturalPipeline() *Scripted {
	s := NewScripted(StateChanged(model.StateNull, model.StatePlaying), EOS())
	s.OnSetStopped = []model.Status{StateChanged(model.StatePlaying, model.StateNull)}
	return s
}

// LivePipeline returns a handle that plays until a graceful stop is requested.
func LivePipeline() *Scripted {
	s := NewScripted(StateChanged(model.StateNull, model.StatePlaying))
	s.OnGracefulStop = []model.Status{EOS()}
	s.OnSetStopped = []model.Status{StateChanged(model.StatePlaying, model.StateNull)}
	return s
}

// Push appends statuses to the bus.
func (s *Scripted) Push(statuses ...model.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, statuses...)
}

func (s *Scripted) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "start")
	if s.StartErr != nil {
		return s.StartErr
	}
	if s.started {
		return handle.ErrAlreadyStarted
	}
	s.started = true
	return nil
}

func (s *Scripted) RequestGracefulStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "graceful_stop")
	if s.GracefulStopErr != nil {
		return s.GracefulStopErr
	}
	if len(s.OnGracefulStop) == 0 {
		return nil
	}
	reaction := append([]model.Status(nil), s.OnGracefulStop...)
	if s.GracefulStopDelay <= 0 {
		s.queue = append(s.queue, reaction...)
		return nil
	}
	s.timers = append(s.timers, time.AfterFunc(s.GracefulStopDelay, func() {
		s.Push(reaction...)
	}))
	return nil
}

func (s *Scripted) PollStatus() (model.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "poll")
	if p := s.PanicOnPoll; p != nil {
		s.PanicOnPoll = nil
		panic(p)
	}
	if len(s.queue) == 0 {
		return model.Status{}, false
	}
	st := s.queue[0]
	s.queue = s.queue[1:]
	return st, true
}

func (s *Scripted) RecomputeLatency() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "latency")
	return s.LatencyErr
}

func (s *Scripted) SetStopped() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "set_stopped")
	if s.SetStoppedErrs > 0 {
		s.SetStoppedErrs--
		return s.SetStoppedErr
	}
	s.stopped = true
	s.queue = append(s.queue, s.OnSetStopped...)
	return nil
}

func (s *Scripted) ForceStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "force_stop")
	if s.ForceStopErr != nil {
		return s.ForceStopErr
	}
	s.forceStops++
	s.queue = append(s.queue, s.OnForceStop...)
	return nil
}

// Stopped reports whether SetStopped has succeeded.
func (s *Scripted) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// ForceStops returns the number of successful ForceStop calls.
func (s *Scripted) ForceStops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forceStops
}

// Calls returns the journal of handle operations in call order.
func (s *Scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallsWithout returns Calls with the given operation filtered out.
func (s *Scripted) CallsWithout(op string) []string {
	var out []string
	for _, c := range s.Calls() {
		if c != op {
			out = append(out, c)
		}
	}
	return out
}

// Close stops pending delayed reactions.
func (s *Scripted) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

// StateChanged builds a pipeline-sourced state change.
func StateChanged(old, current model.State) model.Status {
	return model.Status{
		Kind:         model.StatusStateChanged,
		Source:       pipelineSource,
		FromPipeline: true,
		Old:          old,
		Current:      current,
	}
}

// ElementStateChanged builds a state change emitted by a child element.
func ElementStateChanged(source string, old, current model.State) model.Status {
	return model.Status{
		Kind:    model.StatusStateChanged,
		Source:  source,
		Old:     old,
		Current: current,
	}
}

// EOS builds an end-of-stream status.
func EOS() model.Status {
	return model.Status{Kind: model.StatusEOS, Source: pipelineSource, FromPipeline: true}
}

// Error builds an error status emitted by source.
func Error(source, message, debug string) model.Status {
	return model.Status{Kind: model.StatusError, Source: source, Message: message, Debug: debug}
}

// Warning builds a warning status.
func Warning(source, message string) model.Status {
	return model.Status{Kind: model.StatusWarning, Source: source, Message: message}
}

// Latency builds a latency-changed status.
func Latency() model.Status {
	return model.Status{Kind: model.StatusLatency, Source: pipelineSource, FromPipeline: true}
}
