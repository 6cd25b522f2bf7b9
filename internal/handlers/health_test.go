package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notely/internal/app"
	"github.com/charlesng35/notely/internal/handlers/testutil"
	"github.com/charlesng35/notely/internal/monitoring"
)

func TestHealthHandler_Status(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	decoded := testutil.DecodeResponse(t, resp)
	require.True(t, decoded.Success)

	var body map[string]any
	testutil.DecodeInto(t, decoded.Data, &body)
	require.Equal(t, "Server is running!", body["message"])
	require.Equal(t, "up", body["status"])
}

func TestHealthHandler_ReadinessReflectsChecks(t *testing.T) {
	health := monitoring.NewHealthManager()
	health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	status := monitoring.StatusDegraded
	health.RegisterReadiness(monitoring.NewCheck("database", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: status, Details: "slow"}
	}))
	env := testutil.NewEnv(t, testutil.WithHealthManager(health))

	live := env.Request(http.MethodGet, "/health/live", nil, "")
	require.Equal(t, http.StatusOK, live.Code)

	ready := env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, ready.Code)
	var report monitoring.HealthReport
	require.NoError(t, json.Unmarshal(ready.Body.Bytes(), &report))
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Len(t, report.Checks, 1)
	require.Equal(t, "database", report.Checks[0].Component)

	status = monitoring.StatusDown
	down := env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, down.Code)

	overall := env.Request(http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, overall.Code)
}

func TestHealthHandler_Disabled(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(func(cfg *app.Config) {
		cfg.Monitoring.Health.Enabled = false
	}))

	for _, path := range []string{"/api/health", "/health/live", "/health/ready"} {
		resp := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusNotFound, resp.Code, path)
	}
}
