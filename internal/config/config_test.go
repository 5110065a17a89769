package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FRONTIER_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 252, cfg.PeriodsPerYear)
	assert.Equal(t, 1e-4, cfg.WeightCutoff)
	assert.Equal(t, 5, cfg.WeightDecimals)
	assert.Equal(t, "lp", cfg.AllocationMethod)
	assert.Equal(t, 10000.0, cfg.DefaultBudget)
	assert.Equal(t, 0.0, cfg.RiskFreeRate)
	assert.Equal(t, dir+"/history.db", cfg.HistoryDBPath())
	assert.Equal(t, dir+"/runs.db", cfg.RunsDBPath())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("FRONTIER_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("RISK_FREE_RATE", "0.02")
	t.Setenv("ALLOCATION_METHOD", "greedy")
	t.Setenv("OPTIMIZE_SCHEDULE", "0 18 * * 1-5")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("MAX_PARALLEL_RUNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 0.02, cfg.RiskFreeRate)
	assert.Equal(t, "greedy", cfg.AllocationMethod)
	assert.Equal(t, "0 18 * * 1-5", cfg.OptimizeSchedule)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 2, cfg.MaxParallelRuns)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Port: 8001, PeriodsPerYear: 252, WeightCutoff: 1e-4, WeightDecimals: 5, AllocationMethod: "lp", MaxParallelRuns: 1}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"periods", func(c *Config) { c.PeriodsPerYear = 0 }},
		{"cutoff", func(c *Config) { c.WeightCutoff = 1 }},
		{"decimals", func(c *Config) { c.WeightDecimals = -1 }},
		{"method", func(c *Config) { c.AllocationMethod = "milp" }},
		{"budget", func(c *Config) { c.DefaultBudget = -1 }},
		{"parallel", func(c *Config) { c.MaxParallelRuns = 0 }},
		{"schedule", func(c *Config) { c.OptimizeSchedule = "every tuesday" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
