// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Statistics
	PeriodsPerYear      int     // observations per year in the return series (252 for daily)
	RiskFreeRate        float64 // annual, as decimal
	LookbackDays        int     // price history window used to build return series
	CovarianceShrinkage bool    // shrink sample covariance toward constant correlation

	// Efficient frontier
	FrontierPoints         int
	OptimizerMaxIterations int
	AllowShort             bool
	OptimizeTimeout        time.Duration

	// Monte Carlo
	MinSimulations       int
	MaxSimulations       int
	MaxReturnedScenarios int
	SimulationWorkers    int
	SimulationTimeout    time.Duration

	// HTTP
	ResultCacheTTL     time.Duration
	RateLimitPerMinute int
	CORSOrigins        []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("OPTIMIZER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		PeriodsPerYear:      getEnvAsInt("PERIODS_PER_YEAR", 252),
		RiskFreeRate:        getEnvAsFloat("RISK_FREE_RATE", 0.05),
		LookbackDays:        getEnvAsInt("LOOKBACK_DAYS", 365),
		CovarianceShrinkage: getEnvAsBool("COVARIANCE_SHRINKAGE", false),

		FrontierPoints:         getEnvAsInt("FRONTIER_POINTS", 20),
		OptimizerMaxIterations: getEnvAsInt("OPTIMIZER_MAX_ITERATIONS", 500),
		AllowShort:             getEnvAsBool("ALLOW_SHORT", false),
		OptimizeTimeout:        getEnvAsDuration("OPTIMIZE_TIMEOUT", 10*time.Second),

		MinSimulations:       getEnvAsInt("MIN_SIMULATIONS", 100),
		MaxSimulations:       getEnvAsInt("MAX_SIMULATIONS", 100000),
		MaxReturnedScenarios: getEnvAsInt("MAX_RETURNED_SCENARIOS", 1000),
		SimulationWorkers:    getEnvAsInt("SIMULATION_WORKERS", 0),
		SimulationTimeout:    getEnvAsDuration("SIMULATION_TIMEOUT", 30*time.Second),

		ResultCacheTTL:     getEnvAsDuration("RESULT_CACHE_TTL", 15*time.Minute),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSOrigins:        getEnvAsList("CORS_ORIGINS", []string{"*"}),
	}

	// 0 means one worker per CPU
	if cfg.SimulationWorkers == 0 {
		cfg.SimulationWorkers = runtime.GOMAXPROCS(0)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that numeric settings are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT %d", c.Port)
	}
	if c.PeriodsPerYear <= 0 {
		return fmt.Errorf("PERIODS_PER_YEAR must be positive, got %d", c.PeriodsPerYear)
	}
	if c.FrontierPoints < 2 {
		return fmt.Errorf("FRONTIER_POINTS must be at least 2, got %d", c.FrontierPoints)
	}
	if c.OptimizerMaxIterations <= 0 {
		return fmt.Errorf("OPTIMIZER_MAX_ITERATIONS must be positive, got %d", c.OptimizerMaxIterations)
	}
	if c.MinSimulations <= 0 || c.MaxSimulations < c.MinSimulations {
		return fmt.Errorf("invalid simulation bounds: min=%d max=%d", c.MinSimulations, c.MaxSimulations)
	}
	if c.SimulationWorkers < 0 {
		return fmt.Errorf("SIMULATION_WORKERS must not be negative, got %d", c.SimulationWorkers)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.RateLimitPerMinute)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
