// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProcSignalsTotal tracks signals delivered to external pipeline process groups
	ProcSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediarun_proc_signals_total",
		Help: "Total signals sent to pipeline process groups, by signal and result",
	}, []string{"signal", "result"})

	// ProcExitsTotal tracks how external pipeline processes exited
	ProcExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediarun_proc_exits_total",
		Help: "Total pipeline process exits, by result",
	}, []string{"result"})

	// ProcStderrLinesTotal tracks classified stderr lines of external pipeline processes
	ProcStderrLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediarun_proc_stderr_lines_total",
		Help: "Total stderr lines read from pipeline processes, by classification",
	}, []string{"class"})
)

// IncProcSignal records a signal delivery attempt ("sent", "esrch", "error").
func IncProcSignal(signal, result string) {
	ProcSignalsTotal.WithLabelValues(signal, result).Inc()
}

func IncProcExit(result string) {
	ProcExitsTotal.WithLabelValues(result).Inc()
}

func IncProcStderrLine(class string) {
	ProcStderrLinesTotal.WithLabelValues(class).Inc()
}
