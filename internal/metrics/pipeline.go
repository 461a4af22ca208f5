// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BusStatusTotal counts bus messages popped by the dispatcher.
	BusStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediarun_bus_status_total",
		Help: "Total number of pipeline bus messages observed, by kind",
	}, []string{"kind"})

	// BusCommandTotal counts commands emitted by the dispatcher.
	BusCommandTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediarun_bus_command_total",
		Help: "Total number of lifecycle commands emitted by the bus dispatcher",
	}, []string{"command"})

	// BestEffortFailuresTotal counts logged-and-ignored failures.
	BestEffortFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediarun_best_effort_failures_total",
		Help: "Total number of non-fatal pipeline operation failures, by operation",
	}, []string{"op"})

	// StopRequestsTotal counts stop requests issued by the coordinator.
	StopRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediarun_stop_requests_total",
		Help: "Total number of stop requests issued to the pipeline, by mode and result",
	}, []string{"mode", "result"})

	// RunOutcomeTotal counts finished coordinator runs.
	RunOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediarun_run_outcome_total",
		Help: "Total number of pipeline runs, by outcome",
	}, []string{"outcome"})

	// RunDuration tracks wall time of coordinator runs.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediarun_run_duration_seconds",
		Help:    "Duration of pipeline runs from start request to return",
		Buckets: prometheus.ExponentialBuckets(0.1, 2.0, 16), // 100ms to ~55min
	}, []string{"outcome"})

	// DiagnosticsSnapshotsTotal counts diagnostic snapshot attempts.
	DiagnosticsSnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediarun_diagnostics_snapshots_total",
		Help: "Total number of diagnostic snapshots, by result",
	}, []string{"result"})
)

// IncBusStatus records a popped bus message.
func IncBusStatus(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	BusStatusTotal.WithLabelValues(kind).Inc()
}

// IncBusCommand records an emitted command.
func IncBusCommand(command string) {
	BusCommandTotal.WithLabelValues(command).Inc()
}

// IncBestEffortFailure records a failure that was logged and ignored.
func IncBestEffortFailure(op string) {
	BestEffortFailuresTotal.WithLabelValues(op).Inc()
}

// IncStopRequest records a graceful or forced stop request.
func IncStopRequest(mode, result string) {
	StopRequestsTotal.WithLabelValues(mode, result).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(outcome string, d time.Duration) {
	RunOutcomeTotal.WithLabelValues(outcome).Inc()
	RunDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncDiagnosticsSnapshot records a snapshot result ("written", "suppressed", "error").
func IncDiagnosticsSnapshot(result string) {
	DiagnosticsSnapshotsTotal.WithLabelValues(result).Inc()
}
