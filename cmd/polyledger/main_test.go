package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uuidRe = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// testEnv writes a config pointing at a temporary SQLite file.
func testEnv(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "STORAGE_DRIVER", "LOG_LEVEL", "LOG_FORMAT", "REDIS_URL"} {
		t.Setenv(k, "")
	}
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	yaml := "storage:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "ledger.db") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))
	return dir, cfgPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestCLI_PortfolioLifecycle(t *testing.T) {
	dir, cfg := testEnv(t)

	out, err := runCLI(t, "--config", cfg, "portfolio", "create", "alpha", "--balance", "1000", "--strategy", "momentum")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha  (momentum, active)")
	portfolioID := uuidRe.FindString(out)
	require.NotEmpty(t, portfolioID)

	signals := filepath.Join(dir, "signals.json")
	require.NoError(t, os.WriteFile(signals, []byte(`[
		{"market_id":"m1","market_question":"Will it rain?","side":"buy_yes","target_price":0.5,"amount":100},
		{"market_id":"m2","side":"buy_no","target_price":0.4,"amount":5000}
	]`), 0o600))

	out, err = runCLI(t, "--config", cfg, "signals", "import", portfolioID, signals)
	require.NoError(t, err)
	assert.Contains(t, out, "2 signals stored as pending.")

	out, err = runCLI(t, "--config", cfg, "execute", portfolioID, "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "1 executed ($100.00) | 1 rejected")
	assert.Contains(t, out, "insufficient balance")

	// the rejected signal stays pending
	out, err = runCLI(t, "--config", cfg, "signals", "list", portfolioID)
	require.NoError(t, err)
	assert.Contains(t, out, "m2")
	assert.NotContains(t, out, "Will it rain?")

	out, err = runCLI(t, "--config", cfg, "portfolio", "show", portfolioID)
	require.NoError(t, err)
	assert.Contains(t, out, "Cash:              $900.00")
	var positionID string
	for _, id := range uuidRe.FindAllString(out, -1) {
		if id != portfolioID {
			positionID = id
		}
	}
	require.NotEmpty(t, positionID)

	out, err = runCLI(t, "--config", cfg, "settle", portfolioID, positionID, "1")
	require.NoError(t, err)
	assert.Contains(t, out, "won")

	out, err = runCLI(t, "--config", cfg, "settle", portfolioID, positionID, "1")
	require.NoError(t, err)
	assert.Contains(t, out, "already closed")

	out, err = runCLI(t, "--config", cfg, "report", portfolioID)
	require.NoError(t, err)
	assert.Contains(t, out, "closed")
	assert.Contains(t, out, "No open positions.")

	_, err = runCLI(t, "--config", cfg, "portfolio", "purge", portfolioID)
	require.ErrorContains(t, err, "--yes")

	_, err = runCLI(t, "--config", cfg, "portfolio", "purge", portfolioID, "--yes")
	require.NoError(t, err)
	_, err = runCLI(t, "--config", cfg, "portfolio", "show", portfolioID)
	require.Error(t, err)
}

func TestCLI_UpdateAndSnapshot(t *testing.T) {
	_, cfg := testEnv(t)

	out, err := runCLI(t, "--config", cfg, "portfolio", "create", "beta")
	require.NoError(t, err)
	id := uuidRe.FindString(out)

	_, err = runCLI(t, "--config", cfg, "portfolio", "update", id)
	require.ErrorContains(t, err, "nothing to update")

	out, err = runCLI(t, "--config", cfg, "portfolio", "update", id, "--status", "paused", "--name", "beta-2")
	require.NoError(t, err)
	assert.Contains(t, out, "beta-2  (manual, paused)")

	out, err = runCLI(t, "--config", cfg, "snapshot", id)
	require.NoError(t, err)
	assert.Contains(t, out, "value $10000.00")

	out, err = runCLI(t, "--config", cfg, "portfolio", "list", "--status", "paused")
	require.NoError(t, err)
	assert.Contains(t, out, "beta-2")
}

func TestCLI_SettleRejectsBadPrice(t *testing.T) {
	_, cfg := testEnv(t)
	_, err := runCLI(t, "--config", cfg, "settle", "p", "pos", "abc")
	require.ErrorContains(t, err, "exit price")
}

func TestCLI_DefaultConfigMissing(t *testing.T) {
	_, _ = testEnv(t)
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "fallback.db"))

	out, err := runCLI(t, "portfolio", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No portfolios yet")
}

func TestCLI_ExplicitConfigMissing(t *testing.T) {
	_, _ = testEnv(t)
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "portfolio", "list")
	require.Error(t, err)
}
