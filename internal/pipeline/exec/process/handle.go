// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package process runs a media pipeline as an external process (ffmpeg by
// default) and presents its lifecycle as a pipeline bus.
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/mediarun/internal/log"
	"github.com/ManuGH/mediarun/internal/metrics"
	"github.com/ManuGH/mediarun/internal/pipeline/handle"
	"github.com/ManuGH/mediarun/internal/pipeline/model"
	"github.com/ManuGH/mediarun/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	// interruptedExitCode is what ffmpeg returns after finalizing on SIGINT.
	interruptedExitCode = 255

	defaultTerminateGrace = 5 * time.Second
	exitDebugLines        = 5
	maxStderrRecord       = 1 << 20
)

// Config describes the external process.
type Config struct {
	Bin  string
	Args []string
	// RingSize bounds the retained stderr tail.
	RingSize int
	// TerminateGrace is how long Close waits after SIGINT before SIGKILL.
	TerminateGrace time.Duration
	Logger         *zerolog.Logger
}

// Handle is a pipeline handle backed by an external process.
type Handle struct {
	cfg    Config
	source string
	ring   *LineRing
	logger zerolog.Logger

	mu            sync.Mutex
	queue         []model.Status
	cmd           *exec.Cmd
	started       bool
	stopRequested bool
	stopped       bool
	waitErr       error

	exited chan struct{}
}

var (
	_ handle.Handle       = (*Handle)(nil)
	_ handle.ForceStopper = (*Handle)(nil)
)

// New returns a handle for cfg. The process is spawned by Start.
func New(cfg Config) (*Handle, error) {
	if strings.TrimSpace(cfg.Bin) == "" {
		return nil, errors.New("process: binary is required")
	}
	if cfg.TerminateGrace <= 0 {
		cfg.TerminateGrace = defaultTerminateGrace
	}
	logger := log.WithComponent("process")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Handle{
		cfg:    cfg,
		source: filepath.Base(cfg.Bin),
		ring:   NewLineRing(cfg.RingSize),
		logger: logger,
		exited: make(chan struct{}),
	}, nil
}

// Start spawns the process in its own process group. ctx only scopes logging;
// the process is stopped through RequestGracefulStop or ForceStop.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return handle.ErrAlreadyStarted
	}
	h.logger = log.WithContext(ctx, h.logger)

	cmd := exec.Command(h.cfg.Bin, h.cfg.Args...) // #nosec G204 -- argv comes from operator configuration
	procgroup.Set(cmd)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", h.source, err)
	}
	h.cmd = cmd
	h.started = true
	h.logger.Info().
		Str(log.FieldEvent, "process.started").
		Int(log.FieldPID, cmd.Process.Pid).
		Str("command", cmd.String()).
		Msg("pipeline process started")

	h.pushLocked(h.stateChanged(model.StateNull, model.StatePlaying))

	var ioWg sync.WaitGroup
	ioWg.Add(1)
	go func() {
		defer ioWg.Done()
		h.consumeStderr(stderr)
	}()
	go h.reap(&ioWg)
	return nil
}

// consumeStderr reads stderr until EOF. Once a record cannot be scanned the
// rest is discarded so the process never blocks on a full pipe.
func (h *Handle) consumeStderr(stderr io.Reader) {
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 0, 64*1024), maxStderrRecord)
	sc.Split(scanRecords)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		h.ring.Add(line)
		kind, ok := classifyLine(line)
		if !ok {
			metrics.IncProcStderrLine("info")
			continue
		}
		metrics.IncProcStderrLine(strings.ToLower(string(kind)))
		h.push(model.Status{Kind: kind, Source: h.source, Message: line})
	}
	if err := sc.Err(); err != nil {
		h.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "process.stderr_unreadable").
			Msg("stderr record unreadable, discarding remaining output")
		metrics.IncProcStderrLine("discarded")
		_, _ = io.Copy(io.Discard, stderr)
	}
}

// scanRecords splits on '\n' or '\r'. ffmpeg terminates progress records
// with a bare carriage return. A "\r\n" pair yields one record.
func scanRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' {
			if i+1 == len(data) && !atEOF {
				// The '\n' of a pair may be in the next read.
				return 0, nil, nil
			}
			if i+1 < len(data) && data[i+1] == '\n' {
				advance++
			}
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// reap waits for the process after its stderr is drained, then reports the
// exit on the bus: an error for an unexpected exit, followed by end-of-stream.
func (h *Handle) reap(ioWg *sync.WaitGroup) {
	// cmd.Wait closes the pipe; all reads must be finished first.
	ioWg.Wait()
	err := h.cmd.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.waitErr = err

	switch {
	case err == nil:
		metrics.IncProcExit("exit0")
	case h.stopRequested && interruptedExit(err):
		metrics.IncProcExit("interrupted")
	default:
		metrics.IncProcExit("error")
		h.pushLocked(model.Status{
			Kind:    model.StatusError,
			Source:  h.source,
			Message: fmt.Sprintf("%s exited: %v", h.source, err),
			Debug:   strings.Join(h.ring.LastN(exitDebugLines), "\n"),
		})
	}
	h.logger.Info().
		Str(log.FieldEvent, "process.exited").
		Int(log.FieldPID, h.cmd.Process.Pid).
		AnErr("exit", err).
		Bool("stop_requested", h.stopRequested).
		Msg("pipeline process exited")

	h.pushLocked(model.Status{Kind: model.StatusEOS, Source: h.source, FromPipeline: true})
	close(h.exited)
}

// RequestGracefulStop sends SIGINT to the process group. ffmpeg finalizes
// its outputs and exits, which surfaces as end-of-stream.
func (h *Handle) RequestGracefulStop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return handle.ErrNotStarted
	}
	if h.hasExited() {
		return nil
	}
	h.stopRequested = true
	if err := procgroup.Signal(h.cmd, syscall.SIGINT); err != nil {
		return fmt.Errorf("interrupt %s: %w", h.source, err)
	}
	return nil
}

func (h *Handle) PollStatus() (model.Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return model.Status{}, false
	}
	st := h.queue[0]
	h.queue = h.queue[1:]
	return st, true
}

// RecomputeLatency is a no-op: an external process manages its own latency.
func (h *Handle) RecomputeLatency() error {
	return nil
}

// SetStopped waits for the process to be reaped and reports the stopped transition.
func (h *Handle) SetStopped() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return handle.ErrNotStarted
	}
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	<-h.exited

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true
	h.pushLocked(h.stateChanged(model.StatePlaying, model.StateNull))
	return nil
}

// ForceStop kills the process group without letting it finalize.
func (h *Handle) ForceStop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return handle.ErrNotStarted
	}
	if h.hasExited() {
		return nil
	}
	h.logger.Warn().Int(log.FieldPID, h.cmd.Process.Pid).Msg("killing pipeline process group")
	return procgroup.Signal(h.cmd, syscall.SIGKILL)
}

// Close terminates a process that is still running and waits for it to be reaped.
func (h *Handle) Close() error {
	h.mu.Lock()
	if !h.started || h.hasExited() {
		h.mu.Unlock()
		return nil
	}
	cmd := h.cmd
	h.stopRequested = true
	h.mu.Unlock()

	waitCh := make(chan error, 1)
	go func() {
		<-h.exited
		h.mu.Lock()
		defer h.mu.Unlock()
		waitCh <- h.waitErr
	}()
	if err := procgroup.Terminate(cmd, waitCh, h.cfg.TerminateGrace); err != nil && !interruptedExit(err) {
		h.logger.Debug().Err(err).Msg("pipeline process terminated")
	}
	return nil
}

// LastLines returns the newest stderr lines of the process.
func (h *Handle) LastLines(n int) []string {
	return h.ring.LastN(n)
}

func (h *Handle) hasExited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

func (h *Handle) push(st model.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushLocked(st)
}

func (h *Handle) pushLocked(st model.Status) {
	h.queue = append(h.queue, st)
}

func (h *Handle) stateChanged(old, current model.State) model.Status {
	return model.Status{
		Kind:         model.StatusStateChanged,
		Source:       h.source,
		FromPipeline: true,
		Old:          old,
		Current:      current,
	}
}

// classifyLine maps a stderr line to a bus status kind.
func classifyLine(line string) (model.StatusKind, bool) {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error"):
		return model.StatusError, true
	case strings.Contains(lower, "warning"):
		return model.StatusWarning, true
	default:
		return "", false
	}
}

// interruptedExit reports whether err describes an exit caused by SIGINT.
func interruptedExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == interruptedExitCode {
		return true
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled() && ws.Signal() == syscall.SIGINT
}
