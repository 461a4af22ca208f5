// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gst runs a GStreamer pipeline described in gst-launch syntax.
//
// The backend needs cgo and the GStreamer development libraries and is only
// compiled with the "gst" build tag. Without it Init and New return
// ErrUnsupported.
package gst

import "errors"

// ErrUnsupported is returned when the binary was built without GStreamer.
var ErrUnsupported = errors.New("gst backend not compiled in (build with -tags gst)")

// ErrNotInitialized is returned by New before Init.
var ErrNotInitialized = errors.New("gst: Init must be called before New")
