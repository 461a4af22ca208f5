// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"github.com/ManuGH/mediarun/internal/pipeline/fsm"
	"github.com/ManuGH/mediarun/internal/pipeline/model"
)

type machine = fsm.Machine[model.LifecycleState, model.LifecycleEvent]

func lifecycleTransitions() []fsm.Transition[model.LifecycleState, model.LifecycleEvent] {
	type tr = fsm.Transition[model.LifecycleState, model.LifecycleEvent]
	out := []tr{
		{From: model.LifecycleCreated, Event: model.EventStarted, To: model.LifecycleRunning},
		{From: model.LifecycleCreated, Event: model.EventStartFailed, To: model.LifecycleFaulted},

		{From: model.LifecycleRunning, Event: model.EventEOS, To: model.LifecycleNaturallyStopping},
		{From: model.LifecycleNaturallyStopping, Event: model.EventDrained, To: model.LifecycleStopped},

		{From: model.LifecycleRunning, Event: model.EventCancel, To: model.LifecycleCancelRequested},
		{From: model.LifecycleCancelRequested, Event: model.EventStopRequested, To: model.LifecycleStopping},
		{From: model.LifecycleStopping, Event: model.EventDrained, To: model.LifecycleStopped},
	}
	for _, s := range []model.LifecycleState{
		model.LifecycleRunning,
		model.LifecycleNaturallyStopping,
		model.LifecycleCancelRequested,
		model.LifecycleStopping,
	} {
		out = append(out, tr{From: s, Event: model.EventFault, To: model.LifecycleFaulted})
	}
	return out
}

func newMachine() *machine {
	m, err := fsm.New(model.LifecycleCreated, lifecycleTransitions())
	if err != nil {
		// The transition table is static; a duplicate is a programming error.
		panic(err)
	}
	return m
}
