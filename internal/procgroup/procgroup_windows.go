// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"

	"github.com/ManuGH/mediarun/internal/metrics"
)

// Set is a no-op on Windows for process groups in this context.
func Set(cmd *exec.Cmd) {}

// Signal maps SIGKILL to Process.Kill(). Windows has no console-independent
// way to interrupt another process, so other signals are unsupported.
func Signal(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if sig != syscall.SIGKILL {
		metrics.IncProcSignal(sig.String(), "unsupported")
		return ErrSignalUnsupported
	}
	if err := cmd.Process.Kill(); err != nil {
		metrics.IncProcSignal(sig.String(), "error")
		return err
	}
	metrics.IncProcSignal(sig.String(), "sent")
	return nil
}
