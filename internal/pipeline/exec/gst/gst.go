// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build gst

package gst

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/mediarun/internal/pipeline/handle"
	"github.com/ManuGH/mediarun/internal/pipeline/model"
	"github.com/tinyzimmer/go-gst/gst"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
)

// Available reports whether the GStreamer backend is compiled in.
func Available() bool { return true }

// Init performs the one-time global GStreamer initialization. It must run
// before the first pipeline is built; later calls are no-ops.
func Init() error {
	initOnce.Do(func() {
		gst.Init(nil)
		initialized.Store(true)
	})
	return nil
}

// Handle wraps a GStreamer pipeline.
type Handle struct {
	pipeline *gst.Pipeline
	bus      *gst.Bus
	name     string
	started  bool
}

var (
	_ handle.Handle       = (*Handle)(nil)
	_ handle.ForceStopper = (*Handle)(nil)
	_ handle.GraphDumper  = (*Handle)(nil)
)

// New parses a gst-launch description into a pipeline.
func New(launch string) (handle.Handle, error) {
	if !initialized.Load() {
		return nil, ErrNotInitialized
	}
	p, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	return &Handle{
		pipeline: p,
		bus:      p.GetPipelineBus(),
		name:     p.GetName(),
	}, nil
}

func (h *Handle) Start(context.Context) error {
	if h.started {
		return handle.ErrAlreadyStarted
	}
	if err := h.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("set state PLAYING: %w", err)
	}
	h.started = true
	return nil
}

// RequestGracefulStop sends an EOS event; the pipeline flushes and posts EOS on its bus.
func (h *Handle) RequestGracefulStop() error {
	if !h.started {
		return handle.ErrNotStarted
	}
	if !h.pipeline.SendEvent(gst.NewEOSEvent()) {
		return errors.New("pipeline rejected EOS event")
	}
	return nil
}

func (h *Handle) PollStatus() (model.Status, bool) {
	for {
		// Pop hands back a message whose reference is released by its finalizer.
		msg := h.bus.Pop()
		if msg == nil {
			return model.Status{}, false
		}
		if st, ok := h.translate(msg); ok {
			return st, true
		}
	}
}

// translate maps a bus message; message types the lifecycle does not use are skipped.
func (h *Handle) translate(msg *gst.Message) (model.Status, bool) {
	src := msg.Source()
	st := model.Status{Source: src, FromPipeline: src == h.name}

	switch msg.Type() {
	case gst.MessageError:
		gerr := msg.ParseError()
		st.Kind = model.StatusError
		st.Message = gerr.Error()
		st.Debug = gerr.DebugString()
	case gst.MessageWarning:
		gerr := msg.ParseWarning()
		st.Kind = model.StatusWarning
		st.Message = gerr.Error()
		st.Debug = gerr.DebugString()
	case gst.MessageLatency:
		st.Kind = model.StatusLatency
	case gst.MessageStateChanged:
		old, current := msg.ParseStateChanged()
		st.Kind = model.StatusStateChanged
		st.Old = mapState(old)
		st.Current = mapState(current)
	case gst.MessageEOS:
		st.Kind = model.StatusEOS
	default:
		return model.Status{}, false
	}
	return st, true
}

// RecomputeLatency redistributes latency after an element reported a change.
func (h *Handle) RecomputeLatency() error {
	if !h.pipeline.RecalculateLatency() {
		return errors.New("recalculate latency failed")
	}
	return nil
}

func (h *Handle) SetStopped() error {
	if err := h.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("set state NULL: %w", err)
	}
	return nil
}

// ForceStop drops the pipeline to NULL without waiting for EOS to flush.
func (h *Handle) ForceStop() error {
	return h.SetStopped()
}

// DumpGraph renders the pipeline topology as Graphviz dot.
func (h *Handle) DumpGraph() ([]byte, error) {
	return []byte(h.pipeline.DebugBinToDotData(gst.DebugGraphShowAll)), nil
}

func mapState(s gst.State) model.State {
	switch s {
	case gst.StateNull:
		return model.StateNull
	case gst.StateReady:
		return model.StateReady
	case gst.StatePaused:
		return model.StatePaused
	case gst.StatePlaying:
		return model.StatePlaying
	default:
		return model.StateVoidPending
	}
}
