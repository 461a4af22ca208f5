// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package handle

import (
	"context"
	"sync"
)

// Serialized owns a Handle and grants exclusive access to it.
// PollStatus can trigger a state transition inside the dispatcher, so a whole
// dispatch step must run under the same lock as RequestGracefulStop.
type Serialized struct {
	mu sync.Mutex
	h  Handle
}

// NewSerialized wraps h. The caller must not use h directly afterwards.
func NewSerialized(h Handle) *Serialized {
	return &Serialized{h: h}
}

// Do runs fn with exclusive access to the wrapped handle.
func (s *Serialized) Do(fn func(Handle)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.h)
}

func (s *Serialized) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Start(ctx)
}

func (s *Serialized) RequestGracefulStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.RequestGracefulStop()
}

func (s *Serialized) ForceStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ForceStop(s.h)
}

// Unwrap returns the wrapped handle for type assertions on optional interfaces.
func (s *Serialized) Unwrap() Handle {
	return s.h
}
