// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// State is the element state reported by the pipeline bus.
type State string

const (
	StateVoidPending State = "VOID_PENDING"
	StateNull        State = "NULL" // fully stopped
	StateReady       State = "READY"
	StatePaused      State = "PAUSED"
	StatePlaying     State = "PLAYING" // running
)

// StatusKind classifies a single bus message.
type StatusKind string

const (
	StatusError        StatusKind = "ERROR"
	StatusWarning      StatusKind = "WARNING"
	StatusLatency      StatusKind = "LATENCY"
	StatusStateChanged StatusKind = "STATE_CHANGED"
	StatusEOS          StatusKind = "EOS"
)

// Status is one message popped from the pipeline bus.
// Old and Current are only meaningful for StatusStateChanged.
type Status struct {
	Kind StatusKind

	// Source is the path of the emitting element.
	Source string
	// FromPipeline is true when the top-level pipeline itself emitted the message.
	FromPipeline bool

	Message string
	Debug   string

	Old     State
	Current State
}

// Command is the reduced vocabulary the dispatcher hands to the coordinator.
type Command string

const (
	CommandStarted Command = "STARTED"
	CommandEnded   Command = "ENDED"
	CommandEOS     Command = "EOS"
	CommandError   Command = "ERROR"
)

// Outcome is how a coordinator run ended.
type Outcome string

const (
	OutcomeFinishedNaturally      Outcome = "FINISHED_NATURALLY"
	OutcomeFinishedByCancellation Outcome = "FINISHED_BY_CANCELLATION"
	OutcomeFaulted                Outcome = "FAULTED"
)

// ExitCode maps the outcome onto the process exit contract.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeFinishedNaturally, OutcomeFinishedByCancellation:
		return 0
	}
	return 1
}

// LifecycleState is the coordinator-level lifecycle.
type LifecycleState string

const (
	LifecycleCreated           LifecycleState = "CREATED"
	LifecycleRunning           LifecycleState = "RUNNING"
	LifecycleNaturallyStopping LifecycleState = "NATURALLY_STOPPING"
	LifecycleCancelRequested   LifecycleState = "CANCEL_REQUESTED"
	LifecycleStopping          LifecycleState = "STOPPING"
	LifecycleStopped           LifecycleState = "STOPPED"
	LifecycleFaulted           LifecycleState = "FAULTED"
)

// IsTerminal returns true if the state is a final state.
func (s LifecycleState) IsTerminal() bool {
	switch s {
	case LifecycleStopped, LifecycleFaulted:
		return true
	}
	return false
}

// LifecycleEvent drives LifecycleState transitions.
type LifecycleEvent string

const (
	EventStarted       LifecycleEvent = "started"
	EventStartFailed   LifecycleEvent = "start_failed"
	EventEOS           LifecycleEvent = "eos"
	EventCancel        LifecycleEvent = "cancel"
	EventStopRequested LifecycleEvent = "stop_requested"
	EventDrained       LifecycleEvent = "drained"
	EventFault         LifecycleEvent = "fault"
)
