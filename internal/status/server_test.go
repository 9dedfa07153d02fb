// ABOUTME: Tests for the status server endpoints
// ABOUTME: Drives the chi router through httptest without opening sockets

package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vito-gateway/internal/admission"
	"github.com/2389/vito-gateway/internal/metrics"
	"github.com/2389/vito-gateway/internal/priority"
	"github.com/2389/vito-gateway/internal/task"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := New(Config{})
	rec := get(t, s.Routes(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReady(t *testing.T) {
	var readyErr error = errors.New("matrix sync not started")
	s := New(Config{Ready: func() error { return readyErr }})

	rec := get(t, s.Routes(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "matrix sync not started")

	readyErr = nil
	rec = get(t, s.Routes(), "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	reg := task.NewRegistry(nil)
	gate := admission.NewGate(0, nil)

	h, ctx, err := reg.TryBegin(context.Background(), "alice", priority.Admin)
	require.NoError(t, err)
	defer reg.End(h)
	release, err := gate.Acquire(ctx, "alice", priority.Admin, nil)
	require.NoError(t, err)
	defer release()

	s := New(Config{Tasks: reg, Gate: gate})
	rec := get(t, s.Routes(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "alice", resp.Tasks[0].UserID)
	assert.Equal(t, "admin", resp.Tasks[0].Rank)
	require.Len(t, resp.Holders, 1)
	assert.Equal(t, 0, resp.Waiting)
}

func TestStatus_EmptyListsNotNull(t *testing.T) {
	s := New(Config{})
	rec := get(t, s.Routes(), "/status")
	assert.Contains(t, rec.Body.String(), `"tasks":[]`)
	assert.Contains(t, rec.Body.String(), `"holders":[]`)
}

func TestMetricsEndpoint(t *testing.T) {
	promReg := metrics.NewRegistry()
	m := metrics.MustNew(promReg, metrics.Gauges{InFlight: func() int { return 2 }, Waiting: func() int { return 0 }})
	m.Request("plain")

	s := New(Config{Gatherer: promReg, MetricsPath: "/internal/metrics"})

	rec := get(t, s.Routes(), "/internal/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "vito_"), "expected vito metrics in exposition")

	rec = get(t, s.Routes(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	s := New(Config{})
	rec := get(t, s.Routes(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
