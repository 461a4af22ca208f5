// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package handle_test

import (
	"context"

	"github.com/ManuGH/mediarun/internal/pipeline/model"
)

// minimal implements only the mandatory Handle surface.
type minimal struct{}

func (minimal) Start(context.Context) error      { return nil }
func (minimal) RequestGracefulStop() error       { return nil }
func (minimal) PollStatus() (model.Status, bool) { return model.Status{}, false }
func (minimal) RecomputeLatency() error          { return nil }
func (minimal) SetStopped() error                { return nil }
