// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for pipeline runs.
const (
	RunIDKey      = "pipeline.run_id"
	BackendKey    = "pipeline.backend"
	OutcomeKey    = "pipeline.outcome"
	CommandKey    = "pipeline.command"
	StopModeKey   = "pipeline.stop_mode"
	ErrorTypeKey  = "error.type"
	CommandsCount = "pipeline.commands"
)

// RunAttributes creates the attributes attached to a run span.
func RunAttributes(runID, backend string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(RunIDKey, runID)}
	if backend != "" {
		attrs = append(attrs, attribute.String(BackendKey, backend))
	}
	return attrs
}

// OutcomeAttributes describes how a run finished.
func OutcomeAttributes(outcome string, commands int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(OutcomeKey, outcome),
		attribute.Int(CommandsCount, commands),
	}
}
