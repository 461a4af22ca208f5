// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts external pipeline processes in their own process
// group and signals the whole group.
package procgroup

import "errors"

var (
	// ErrSignalUnsupported is returned when the platform cannot deliver a signal to a process group.
	ErrSignalUnsupported = errors.New("signal not supported on this platform")
)
