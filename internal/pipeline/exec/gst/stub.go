// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !gst

package gst

import "github.com/ManuGH/mediarun/internal/pipeline/handle"

// Available reports whether the GStreamer backend is compiled in.
func Available() bool { return false }

func Init() error { return ErrUnsupported }

func New(string) (handle.Handle, error) { return nil, ErrUnsupported }
