// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"

	"github.com/ManuGH/mediarun/internal/metrics"
)

// Set configures the command to start in a new process group.
// Mandatory for Signal to reach the children of the process.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Signal sends sig to the process group of the command.
// If the command or process is nil, or if the process has already exited, it returns nil.
func Signal(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// Setpgid makes the process a group leader with PGID = PID.
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			metrics.IncProcSignal(sig.String(), "esrch")
			return nil
		}
		metrics.IncProcSignal(sig.String(), "error")
		return err
	}

	// Negative PGID signals the whole group
	if err := syscall.Kill(-pgid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			metrics.IncProcSignal(sig.String(), "esrch")
			return nil
		}
		metrics.IncProcSignal(sig.String(), "error")
		return err
	}
	metrics.IncProcSignal(sig.String(), "sent")
	return nil
}
