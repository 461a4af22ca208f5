// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import "errors"

var (
	// ErrStartFailed wraps a failure to bring the pipeline to running.
	ErrStartFailed = errors.New("pipeline start failed")

	// ErrPollPanicked is returned when the polling task aborts unexpectedly.
	ErrPollPanicked = errors.New("pipeline polling task aborted")

	// ErrStopFailed is returned when neither a graceful nor a forced stop could be issued.
	ErrStopFailed = errors.New("pipeline stop request failed")

	// ErrForcedStop is returned when the pipeline had to be force-stopped
	// because it did not drain within the stop timeout.
	ErrForcedStop = errors.New("pipeline force-stopped after stop timeout")

	// ErrMissingHandle is returned when a coordinator is built without a handle.
	ErrMissingHandle = errors.New("pipeline handle is required")
)
