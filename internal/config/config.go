// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/frontier/internal/modules/allocation"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for all databases (always absolute)
	LogLevel         string
	Port             int
	DevMode          bool
	RiskFreeRate     float64
	PeriodsPerYear   int
	WeightCutoff     float64
	WeightDecimals   int
	AllocationMethod string
	DefaultBudget    float64
	ProfilesPath     string // YAML portfolio profiles; empty disables profiles
	OptimizeSchedule string // Cron spec for scheduled profile runs; empty disables the scheduler
	MaxParallelRuns  int
	RunRetentionDays int // Archived runs older than this are pruned; 0 keeps everything
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FRONTIER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             getEnvAsInt("GO_PORT", 8001),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		RiskFreeRate:     getEnvAsFloat("RISK_FREE_RATE", 0),
		PeriodsPerYear:   getEnvAsInt("PERIODS_PER_YEAR", 252),
		WeightCutoff:     getEnvAsFloat("WEIGHT_CUTOFF", 1e-4),
		WeightDecimals:   getEnvAsInt("WEIGHT_DECIMALS", 5),
		AllocationMethod: getEnv("ALLOCATION_METHOD", string(allocation.MethodLP)),
		DefaultBudget:    getEnvAsFloat("DEFAULT_BUDGET", 10000),
		ProfilesPath:     getEnv("PROFILES_PATH", ""),
		OptimizeSchedule: getEnv("OPTIMIZE_SCHEDULE", ""),
		MaxParallelRuns:  getEnvAsInt("MAX_PARALLEL_RUNS", 2),
		RunRetentionDays: getEnvAsInt("RUN_RETENTION_DAYS", 365),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every setting is in range
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.PeriodsPerYear <= 0 {
		return fmt.Errorf("PERIODS_PER_YEAR must be positive, got %d", c.PeriodsPerYear)
	}
	if c.WeightCutoff < 0 || c.WeightCutoff >= 1 {
		return fmt.Errorf("WEIGHT_CUTOFF must be in [0, 1), got %v", c.WeightCutoff)
	}
	if c.WeightDecimals < 0 || c.WeightDecimals > 12 {
		return fmt.Errorf("WEIGHT_DECIMALS must be in [0, 12], got %d", c.WeightDecimals)
	}
	if _, err := allocation.ParseMethod(c.AllocationMethod); err != nil {
		return fmt.Errorf("ALLOCATION_METHOD: %w", err)
	}
	if c.DefaultBudget < 0 {
		return fmt.Errorf("DEFAULT_BUDGET must not be negative, got %v", c.DefaultBudget)
	}
	if c.MaxParallelRuns <= 0 {
		return fmt.Errorf("MAX_PARALLEL_RUNS must be positive, got %d", c.MaxParallelRuns)
	}
	if c.RunRetentionDays < 0 {
		return fmt.Errorf("RUN_RETENTION_DAYS must not be negative, got %d", c.RunRetentionDays)
	}
	if c.OptimizeSchedule != "" {
		if _, err := cron.ParseStandard(c.OptimizeSchedule); err != nil {
			return fmt.Errorf("OPTIMIZE_SCHEDULE %q is not a valid cron spec: %w", c.OptimizeSchedule, err)
		}
	}
	return nil
}

// HistoryDBPath is the price history database file.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// RunsDBPath is the run archive database file.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.DataDir, "runs.db")
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
