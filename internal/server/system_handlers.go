package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/calculations"
	"github.com/aristath/frontier/internal/scheduler"
)

// SystemHandlers handles system status and maintenance requests
type SystemHandlers struct {
	log            zerolog.Logger
	dataDir        string
	startupTime    time.Time
	portfolioDB    *database.DB
	historyDB      *database.DB
	calculationsDB *database.DB
	jobs           map[string]scheduler.Job
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status         string           `json:"status"`
	StartedAt      string           `json:"started_at"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	GoVersion      string           `json:"go_version"`
	NumCPU         int              `json:"num_cpu"`
	Goroutines     int              `json:"goroutines"`
	HeapAllocMB    float64          `json:"heap_alloc_mb"`
	CPUPercent     float64          `json:"cpu_percent"`
	MemoryPercent  float64          `json:"memory_percent"`
	PortfolioCount int              `json:"portfolio_count"`
	PositionCount  int              `json:"position_count"`
	PricedSymbols  int              `json:"priced_symbols"`
	PriceRows      int              `json:"price_rows"`
	CachedResults  map[string]int   `json:"cached_results"`
	Jobs           []string         `json:"jobs"`
	Databases      map[string]DBInfo `json:"databases"`
}

// DBInfo describes one database file
type DBInfo struct {
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
	WALMB  float64 `json:"wal_mb"`
}

// NewSystemHandlers creates system handlers. jobs may be empty.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	portfolioDB *database.DB,
	historyDB *database.DB,
	calculationsDB *database.DB,
	jobs ...scheduler.Job,
) *SystemHandlers {
	byName := make(map[string]scheduler.Job, len(jobs))
	for _, job := range jobs {
		if job != nil {
			byName[job.Name()] = job
		}
	}

	return &SystemHandlers{
		log:            log.With().Str("handler", "system").Logger(),
		dataDir:        dataDir,
		startupTime:    time.Now(),
		portfolioDB:    portfolioDB,
		historyDB:      historyDB,
		calculationsDB: calculationsDB,
		jobs:           byName,
	}
}

// GetSystemStatusSnapshot collects process, host and database figures.
// Query failures are logged, leave their figures at zero and are returned as the first error.
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) (SystemStatusResponse, error) {
	var firstErr error
	recordErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		StartedAt:     h.startupTime.Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocMB:   float64(memStats.HeapAlloc) / 1024 / 1024,
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		CachedResults: make(map[string]int),
		Jobs:          h.jobNames(),
		Databases:     h.databaseFiles(),
	}

	if h.portfolioDB != nil {
		recordErr(h.count(ctx, h.portfolioDB, `SELECT COUNT(*) FROM portfolios`, &response.PortfolioCount))
		recordErr(h.count(ctx, h.portfolioDB, `SELECT COUNT(*) FROM positions`, &response.PositionCount))
	}
	if h.historyDB != nil {
		recordErr(h.count(ctx, h.historyDB, `SELECT COUNT(*) FROM daily_prices`, &response.PriceRows))
		recordErr(h.count(ctx, h.historyDB, `SELECT COUNT(DISTINCT symbol) FROM daily_prices`, &response.PricedSymbols))
	}
	if h.calculationsDB != nil {
		for _, table := range calculations.AllTables {
			var n int
			recordErr(h.count(ctx, h.calculationsDB, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table), &n))
			response.CachedResults[table] = n
		}
	}

	if firstErr != nil {
		response.Status = "degraded"
	}
	return response, firstErr
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	response, err := h.GetSystemStatusSnapshot(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("System status collected with warnings")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleTriggerJob handles POST /api/system/jobs/{name} by running the job immediately
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown job %q", name), http.StatusNotFound)
		return
	}

	start := time.Now()
	err := job.Run()

	response := map[string]interface{}{
		"job":         name,
		"status":      "success",
		"duration_ms": time.Since(start).Milliseconds(),
	}
	status := http.StatusOK
	if err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		response["status"] = "failed"
		response["error"] = err.Error()
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func (h *SystemHandlers) count(ctx context.Context, db *database.DB, query string, dst *int) error {
	err := db.Conn().QueryRowContext(ctx, query).Scan(dst)
	if err != nil && err != sql.ErrNoRows {
		h.log.Error().Err(err).Str("database", db.Name()).Msg("Status query failed")
		return fmt.Errorf("status query on %s failed: %w", db.Name(), err)
	}
	return nil
}

func (h *SystemHandlers) jobNames() []string {
	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// databaseFiles reports the on-disk size of each database and its WAL
func (h *SystemHandlers) databaseFiles() map[string]DBInfo {
	out := make(map[string]DBInfo)
	for _, db := range []*database.DB{h.portfolioDB, h.historyDB, h.calculationsDB} {
		if db == nil {
			continue
		}
		path := filepath.Join(h.dataDir, db.Name()+".db")
		info := DBInfo{Path: path}
		if st, err := os.Stat(path); err == nil {
			info.SizeMB = float64(st.Size()) / 1024 / 1024
		}
		if st, err := os.Stat(path + "-wal"); err == nil {
			info.WALMB = float64(st.Size()) / 1024 / 1024
		}
		out[db.Name()] = info
	}
	return out
}

// getSystemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
