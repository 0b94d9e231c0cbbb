package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:                t.TempDir(),
		Port:                   8001,
		DevMode:                true,
		PeriodsPerYear:         252,
		RiskFreeRate:           0.02,
		FrontierPoints:         10,
		OptimizerMaxIterations: 200,
		OptimizeTimeout:        5 * time.Second,
		MinSimulations:         100,
		MaxSimulations:         1000,
		MaxReturnedScenarios:   10,
		SimulationWorkers:      2,
		SimulationTimeout:      5 * time.Second,
		ResultCacheTTL:         time.Minute,
		CORSOrigins:            []string{"*"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *di.Container) {
	t.Helper()
	container, jobs, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Container: container,
		Jobs:      jobs,
	}), container
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, container := newTestServer(t, testConfig(t))

	rec := serve(s, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string            `json:"status"`
		Databases map[string]string `json:"databases"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, map[string]string{"portfolio": "ok", "history": "ok", "calculations": "ok"}, body.Databases)

	t.Run("degraded when a database is unavailable", func(t *testing.T) {
		container.HistoryDB.Close()

		rec := serve(s, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"history":"unavailable"`)
	})
}

func TestSystemStatus(t *testing.T) {
	s, container := newTestServer(t, testConfig(t))
	require.NoError(t, container.PositionRepo.Upsert(context.Background(), domain.Position{
		PortfolioID: "main",
		Symbol:      "AAA",
		Quantity:    10,
		MarketValue: 1000,
	}))

	rec := serve(s, httptest.NewRequest("GET", "/api/system/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 1, status.PortfolioCount)
	assert.Equal(t, 1, status.PositionCount)
	assert.Equal(t, 0, status.PriceRows)
	assert.Equal(t, map[string]int{"optimization_results": 0, "simulation_results": 0}, status.CachedResults)
	assert.Equal(t, []string{"check_wal_checkpoints", "result_cache_cleanup"}, status.Jobs)
	assert.Len(t, status.Databases, 3)
	assert.Positive(t, status.Goroutines)
}

func TestTriggerJob(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	rec := serve(s, httptest.NewRequest("POST", "/api/system/jobs/result_cache_cleanup", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)

	rec = serve(s, httptest.NewRequest("POST", "/api/system/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOptimizationRoutesMounted(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	req := httptest.NewRequest("POST", "/api/optimization/optimize", strings.NewReader(`{"portfolio_id":"ghost"}`))
	rec := serve(s, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"NotFound"`)
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitPerMinute = 2
	s, _ := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := serve(s, httptest.NewRequest("GET", "/api/optimization/portfolio/ghost/risk-metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	rec := serve(s, httptest.NewRequest("GET", "/api/optimization/portfolio/ghost/risk-metrics", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec = serve(s, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	req := httptest.NewRequest("OPTIONS", "/api/optimization/optimize", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := serve(s, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
