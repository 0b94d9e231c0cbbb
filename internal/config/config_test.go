package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPTIMIZER_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 252, cfg.PeriodsPerYear)
	assert.InDelta(t, 0.05, cfg.RiskFreeRate, 1e-12)
	assert.Equal(t, 20, cfg.FrontierPoints)
	assert.Equal(t, 100, cfg.MinSimulations)
	assert.Equal(t, 1000, cfg.MaxReturnedScenarios)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.SimulationWorkers)
	assert.Equal(t, 30*time.Second, cfg.SimulationTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.AllowShort)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OPTIMIZER_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("RISK_FREE_RATE", "0.03")
	t.Setenv("ALLOW_SHORT", "true")
	t.Setenv("SIMULATION_WORKERS", "3")
	t.Setenv("OPTIMIZE_TIMEOUT", "2s")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000, https://app.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.InDelta(t, 0.03, cfg.RiskFreeRate, 1e-12)
	assert.True(t, cfg.AllowShort)
	assert.Equal(t, 3, cfg.SimulationWorkers)
	assert.Equal(t, 2*time.Second, cfg.OptimizeTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.CORSOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("OPTIMIZER_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "not-a-number")
	t.Setenv("OPTIMIZE_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.OptimizeTimeout)
}

func TestValidate(t *testing.T) {
	t.Setenv("OPTIMIZER_DATA_DIR", t.TempDir())
	t.Setenv("FRONTIER_POINTS", "1")

	_, err := Load()
	assert.Error(t, err)
}
