// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestIncBusStatus_UnknownKind(t *testing.T) {
	before := counterValue(t, BusStatusTotal.WithLabelValues("unknown"))
	IncBusStatus("")
	after := counterValue(t, BusStatusTotal.WithLabelValues("unknown"))
	assert.Equal(t, before+1, after)
}

func TestObserveRun_CountsOutcome(t *testing.T) {
	before := counterValue(t, RunOutcomeTotal.WithLabelValues("TEST_OUTCOME"))
	ObserveRun("TEST_OUTCOME", 250*time.Millisecond)
	after := counterValue(t, RunOutcomeTotal.WithLabelValues("TEST_OUTCOME"))
	assert.Equal(t, before+1, after)
}

func TestRouter_ServesMetricsAndHealth(t *testing.T) {
	IncBusCommand("STARTED")
	router := NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "mediarun_bus_command_total"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}
