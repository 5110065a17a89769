package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePriceCSV writes a deterministic three-asset history and returns its path.
func writePriceCSV(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Date,AAA,BBB,CCC\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := 0; d < 120; d++ {
		x := float64(d)
		fmt.Fprintf(&b, "%s,%.4f,%.4f,%.4f\n",
			start.AddDate(0, 0, d).Format("2006-01-02"),
			100*(1+0.0008*x+0.02*math.Sin(x/3)),
			50*(1+0.0005*x+0.015*math.Cos(x/5)),
			25*(1+0.0003*x+0.01*math.Sin(x/7+1)),
		)
	}
	path := filepath.Join(dir, "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand_JSON(t *testing.T) {
	path := writePriceCSV(t, t.TempDir())

	out, err := execute(t, "run", path, "--format", "json", "--budget", "5000")
	require.NoError(t, err)

	var result struct {
		Assets  []string `json:"assets"`
		Weights []struct {
			Asset  string  `json:"asset"`
			Weight float64 `json:"weight"`
		} `json:"weights"`
		Allocation struct {
			Cost     float64 `json:"cost"`
			Leftover float64 `json:"leftover"`
		} `json:"allocation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, result.Assets)

	var sum float64
	for _, w := range result.Weights {
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.LessOrEqual(t, result.Allocation.Cost, 5000.0)
	assert.InDelta(t, 5000.0, result.Allocation.Cost+result.Allocation.Leftover, 1e-6)
}

func TestRunCommand_Table(t *testing.T) {
	path := writePriceCSV(t, t.TempDir())

	out, err := execute(t, "run", path, "--objective", "min_volatility", "--method", "greedy", "--assets", "AAA,CCC")
	require.NoError(t, err)
	assert.Contains(t, out, "min_volatility")
	assert.Contains(t, out, "Sharpe Ratio")
	assert.Contains(t, out, "Funds remaining")
	assert.NotContains(t, out, "BBB")
}

func TestRunCommand_Errors(t *testing.T) {
	path := writePriceCSV(t, t.TempDir())

	_, err := execute(t, "run", path, "--objective", "nope")
	assert.Error(t, err)

	_, err = execute(t, "run", path, "--format", "xml")
	assert.Error(t, err)

	_, err = execute(t, "run", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = execute(t, "run", path, "--objective", "efficient_return", "--target-return", "50")
	assert.Error(t, err)
}

func TestImportAndProfiles(t *testing.T) {
	dir := t.TempDir()
	path := writePriceCSV(t, dir)
	dataDir := filepath.Join(dir, "data")

	profilesPath := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(profilesPath, []byte(`
profiles:
  - name: core
    assets: [AAA, BBB, CCC]
    lookback_days: 90
  - name: pair
    assets: [AAA, CCC]
    objective: min_volatility
`), 0o644))
	t.Setenv("PROFILES_PATH", profilesPath)
	t.Setenv("FRONTIER_DATA_DIR", dataDir)

	out, err := execute(t, "--data-dir", dataDir, "import", path, "--source", "test")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 360 rows")

	out, err = execute(t, "profiles", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "core")
	assert.Contains(t, out, "pair")

	out, err = execute(t, "profiles", "run", "--all", "--format", "json")
	require.NoError(t, err)

	var outcomes []struct {
		Profile string `json:"profile"`
		RunID   string `json:"run_id"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &outcomes))
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Empty(t, o.Error, o.Profile)
		assert.NotEmpty(t, o.RunID, o.Profile)
	}

	_, err = execute(t, "profiles", "run", "missing")
	assert.Error(t, err)

	_, err = execute(t, "profiles", "run")
	assert.Error(t, err)
}
