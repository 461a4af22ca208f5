// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/mediarun/internal/metrics"
)

// Terminate stops a process group that is still running: SIGINT, then SIGKILL
// if the process has not exited within grace. waitCh must deliver the result
// of cmd.Wait; Terminate consumes and returns it.
// It is safe to call on nil commands (returns nil).
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// An unsupported interrupt (windows) falls through to the kill after grace.
	_ = Signal(cmd, syscall.SIGINT)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-waitCh:
		recordExit("terminated", err)
		return err
	case <-timer.C:
	}

	_ = Signal(cmd, syscall.SIGKILL)
	err := <-waitCh
	recordExit("forced", err)
	return err
}

func recordExit(mode string, err error) {
	if err == nil {
		metrics.IncProcExit(mode + "_exit0")
		return
	}
	metrics.IncProcExit(mode + "_error")
}
