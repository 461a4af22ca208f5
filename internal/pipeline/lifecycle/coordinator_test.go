// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/mediarun/internal/pipeline/handle"
	"github.com/ManuGH/mediarun/internal/pipeline/handle/handletest"
	"github.com/ManuGH/mediarun/internal/pipeline/model"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	started = model.CommandStarted
	eos     = model.CommandEOS
	ended   = model.CommandEnded
	failed  = model.CommandError
)

func testOptions() Options {
	logger := zerolog.Nop()
	return Options{
		PollInterval: time.Millisecond,
		Backend:      "scripted",
		Logger:       &logger,
	}
}

// cancelOn returns an observer that cancels once cmd has been dispatched.
func cancelOn(cmd model.Command, cancel context.CancelFunc) func(model.Command) {
	var once sync.Once
	return func(c model.Command) {
		if c == cmd {
			once.Do(cancel)
		}
	}
}

func newCoordinator(t *testing.T, h handle.Handle, opts Options) *Coordinator {
	t.Helper()
	c, err := New(h, opts)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresHandle(t *testing.T) {
	_, err := New(nil, testOptions())
	require.ErrorIs(t, err, ErrMissingHandle)
}

func TestRun_NaturalEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.NaturalPipeline()
	c := newCoordinator(t, fake, testOptions())

	rep, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFinishedNaturally, rep.Outcome)
	assert.Equal(t, 0, rep.Outcome.ExitCode())
	if diff := cmp.Diff([]model.Command{started, eos, ended}, rep.Commands); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, fake.Stopped())
	assert.NotContains(t, fake.Calls(), "graceful_stop")
	assert.Equal(t, "start", fake.Calls()[0])
	assert.Equal(t, model.LifecycleStopped, c.State())
	assert.NotEmpty(t, rep.RunID)
	assert.False(t, rep.EndedAt.Before(rep.StartedAt))
}

func TestRun_CancelledWhilePlaying(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.LivePipeline()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.Observer = cancelOn(started, cancel)
	c := newCoordinator(t, fake, opts)

	rep, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFinishedByCancellation, rep.Outcome)
	assert.Equal(t, 0, rep.Outcome.ExitCode())
	if diff := cmp.Diff([]model.Command{started, eos, ended}, rep.Commands); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	graceful := 0
	for _, call := range fake.Calls() {
		if call == "graceful_stop" {
			graceful++
		}
	}
	assert.Equal(t, 1, graceful)
	assert.True(t, fake.Stopped())
	assert.Equal(t, model.LifecycleStopped, c.State())
}

func TestRun_StartFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cause := errors.New("no such element")
	fake := handletest.NaturalPipeline()
	fake.StartErr = cause
	c := newCoordinator(t, fake, testOptions())

	rep, err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, model.OutcomeFaulted, rep.Outcome)
	assert.Equal(t, 1, rep.Outcome.ExitCode())
	assert.Equal(t, err, rep.Err)
	assert.Empty(t, rep.Commands)
	assert.Equal(t, []string{"start"}, fake.Calls())
	assert.Equal(t, model.LifecycleFaulted, c.State())
}

func TestRun_ErrorWithoutEOSWaitsForInterrupt(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.NewScripted(
		handletest.StateChanged(model.StateNull, model.StatePlaying),
		handletest.Error("/GstPipeline:pipeline0/GstFileSrc:src", "could not open file", "gstfilesrc.c(533)"),
	)
	fake.OnGracefulStop = []model.Status{handletest.EOS()}
	fake.OnSetStopped = []model.Status{handletest.StateChanged(model.StatePlaying, model.StateNull)}

	sawError := make(chan struct{})
	var once sync.Once
	opts := testOptions()
	opts.Observer = func(cmd model.Command) {
		if cmd == failed {
			once.Do(func() { close(sawError) })
		}
	}
	c := newCoordinator(t, fake, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		rep Report
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := c.Run(ctx)
		done <- result{rep, err}
	}()

	select {
	case <-sawError:
	case <-time.After(2 * time.Second):
		t.Fatal("error command was not dispatched")
	}
	select {
	case <-done:
		t.Fatal("run returned on an error status without end-of-stream")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after interrupt")
	}
	require.NoError(t, res.err)
	assert.Equal(t, model.OutcomeFinishedByCancellation, res.rep.Outcome)
	if diff := cmp.Diff([]model.Command{started, failed, eos, ended}, res.rep.Commands); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_SlowStopIsAwaited(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	const delay = 50 * time.Millisecond
	fake := handletest.LivePipeline()
	fake.GracefulStopDelay = delay
	defer fake.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cancelledAt time.Time
	opts := testOptions()
	opts.Observer = func(cmd model.Command) {
		if cmd == started {
			cancelledAt = time.Now()
			cancel()
		}
	}
	c := newCoordinator(t, fake, opts)

	rep, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFinishedByCancellation, rep.Outcome)
	assert.True(t, fake.Stopped(), "run returned before the pipeline stopped")
	assert.GreaterOrEqual(t, time.Since(cancelledAt), delay)
	assert.Contains(t, rep.Commands, eos)
	assert.False(t, rep.ForcedStop)
}

func TestRun_EOSStopFailureKeepsDraining(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.NewScripted(
		handletest.StateChanged(model.StateNull, model.StatePlaying),
		handletest.EOS(),
		handletest.EOS(),
	)
	fake.SetStoppedErrs = 1
	fake.SetStoppedErr = errors.New("state change failure")
	fake.OnSetStopped = []model.Status{handletest.StateChanged(model.StatePlaying, model.StateNull)}
	c := newCoordinator(t, fake, testOptions())

	rep, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFinishedNaturally, rep.Outcome)
	if diff := cmp.Diff([]model.Command{started, eos, ended}, rep.Commands); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_PollPanicIsFault(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.NaturalPipeline()
	fake.PanicOnPoll = "bus corrupted"
	c := newCoordinator(t, fake, testOptions())

	rep, err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrPollPanicked)
	assert.Contains(t, err.Error(), "bus corrupted")
	assert.Equal(t, model.OutcomeFaulted, rep.Outcome)
	assert.Equal(t, model.LifecycleFaulted, c.State())
}

func TestRun_StopTimeoutForcesStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// Never reacts to the graceful stop.
	fake := handletest.NewScripted(handletest.StateChanged(model.StateNull, model.StatePlaying))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.StopTimeout = 20 * time.Millisecond
	opts.Observer = cancelOn(started, cancel)
	c := newCoordinator(t, fake, opts)

	rep, err := c.Run(ctx)
	require.ErrorIs(t, err, ErrForcedStop)
	assert.True(t, IsForcedStop(err))
	assert.True(t, rep.ForcedStop)
	assert.Equal(t, model.OutcomeFaulted, rep.Outcome)
	assert.Equal(t, 1, fake.ForceStops())
	assert.Contains(t, fake.Calls(), "graceful_stop")
}

func TestRun_StopTimeoutNotReachedWhenDrained(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.LivePipeline()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.StopTimeout = time.Minute
	opts.Observer = cancelOn(started, cancel)
	c := newCoordinator(t, fake, opts)

	rep, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFinishedByCancellation, rep.Outcome)
	assert.Zero(t, fake.ForceStops())
}

func TestRun_GracefulStopFailureEscalates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.LivePipeline()
	fake.GracefulStopErr = errors.New("event rejected")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.Observer = cancelOn(started, cancel)
	c := newCoordinator(t, fake, opts)

	rep, err := c.Run(ctx)
	require.ErrorIs(t, err, ErrForcedStop)
	assert.Equal(t, model.OutcomeFaulted, rep.Outcome)
	assert.Equal(t, 1, fake.ForceStops())
}

func TestRun_GracefulAndForceStopFail(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.LivePipeline()
	fake.GracefulStopErr = errors.New("event rejected")
	fake.ForceStopErr = errors.New("kill failed")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.Observer = cancelOn(started, cancel)
	c := newCoordinator(t, fake, opts)

	rep, err := c.Run(ctx)
	require.ErrorIs(t, err, ErrStopFailed)
	assert.Contains(t, err.Error(), "kill failed")
	assert.Equal(t, model.OutcomeFaulted, rep.Outcome)
}

// gracefulOnly hides the optional ForceStop method of the wrapped handle.
type gracefulOnly struct{ handle.Handle }

func TestRun_GracefulStopFailureWithoutForceStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.LivePipeline()
	fake.GracefulStopErr = errors.New("event rejected")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.Observer = cancelOn(started, cancel)
	c := newCoordinator(t, gracefulOnly{fake}, opts)

	rep, err := c.Run(ctx)
	require.ErrorIs(t, err, ErrStopFailed)
	assert.ErrorIs(t, err, handle.ErrForceStopUnsupported)
	assert.Equal(t, model.OutcomeFaulted, rep.Outcome)
	assert.NotContains(t, fake.Calls(), "force_stop")
}

func TestRun_InterruptAfterEOSIsIgnored(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.NaturalPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.Observer = cancelOn(eos, cancel)
	c := newCoordinator(t, fake, opts)

	rep, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFinishedNaturally, rep.Outcome)
	assert.NotContains(t, fake.Calls(), "graceful_stop")
	assert.Equal(t, model.LifecycleStopped, c.State())
}

func TestRun_InterruptBeforeStartStillStarts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.LivePipeline()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newCoordinator(t, fake, testOptions())
	rep, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFinishedByCancellation, rep.Outcome)
	assert.Equal(t, "start", fake.Calls()[0])
	assert.True(t, fake.Stopped())
}

func TestRun_ObserverSeesBusOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := handletest.NewScripted(
		handletest.StateChanged(model.StateNull, model.StatePlaying),
		handletest.Warning("/GstPipeline:pipeline0/x264enc0", "dropping frames"),
		handletest.Latency(),
		handletest.Error("/GstPipeline:pipeline0/mux", "not negotiated", ""),
		handletest.EOS(),
	)
	fake.OnSetStopped = []model.Status{handletest.StateChanged(model.StatePlaying, model.StateNull)}

	var seen []model.Command
	opts := testOptions()
	opts.Observer = func(cmd model.Command) { seen = append(seen, cmd) }
	c := newCoordinator(t, fake, opts)

	rep, err := c.Run(context.Background())
	require.NoError(t, err)

	want := []model.Command{started, failed, eos, ended}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("observer order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want, rep.Commands)
	assert.Contains(t, fake.Calls(), "latency")
}
