package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_SeedRolloverSnapshot(t *testing.T) {
	// GIVEN: A sqlite file store
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "db", "cartledger.db"))
	t.Setenv("LOG_LEVEL", "error")

	// WHEN: Seeding last week's unpaid balances and running a bulk rollover
	out, err := run(t, "seed", "rollover-due")
	require.NoError(t, err, out)
	assert.Contains(t, out, "loaded scenario rollover-due")

	out, err = run(t, "rollover")
	require.NoError(t, err, out)

	// THEN: The two unpaid carts are rolled over
	assert.Contains(t, out, "success (2 rolled over, 0 failed)")
	assert.Contains(t, out, "cust-diaz")
	assert.Contains(t, out, "cust-evans")

	// AND: A second run finds nothing
	out, err = run(t, "rollover")
	require.NoError(t, err, out)
	assert.Contains(t, out, "noop")

	// AND: A snapshot can be written to XLSX
	xlsx := filepath.Join(dir, "grid.xlsx")
	out, err = run(t, "snapshot", "--out", xlsx)
	require.NoError(t, err, out)
	info, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestCLI_SingleRolloverNeedsBothFlags(t *testing.T) {
	_, err := run(t, "rollover", "--customer", "cust-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--customer and --week")
}

func TestCLI_SeedUnknownScenario(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "cartledger.db"))
	t.Setenv("LOG_LEVEL", "error")

	_, err := run(t, "seed", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenario")
}

func TestCLI_BadConfig(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")

	_, err := run(t, "seed", "weekly-carts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
}
