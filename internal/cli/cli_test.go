package cli

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchsung/trading-bot/feed"
	"github.com/touchsung/trading-bot/market"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func writeHistory(t *testing.T, dir, symbol string, n int) {
	t.Helper()

	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		c := 100 + 0.05*float64(i) + 15*math.Sin(float64(i)/9)
		bars[i] = market.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c + 2, Low: c - 2, Close: c, Volume: 1000}
	}

	fh, err := os.Create(filepath.Join(dir, symbol+".csv"))
	require.NoError(t, err)
	require.NoError(t, feed.WriteBars(fh, bars))
	require.NoError(t, fh.Close())
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "trader (dev)")
}

func TestConfigInitAndShow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trader.yaml")
	out, err := run(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = run(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "max_trade_fraction: 0.1")
	assert.Contains(t, out, "timezone: Asia/Bangkok")

	out, err = run(t, "config", "show", "--config", path, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"initial_budget": 100000`)
}

func TestConfigShow_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("TRADER_ACCOUNT_NO", "ACC-ENV")
	t.Setenv("TRADER_DISCORD_WEBHOOK_URL", "https://discord.example/api/webhooks/1/abc")
	t.Setenv("TRADER_DATABASE_DSN", "/var/lib/trader/env.db")

	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "no: ACC-ENV")
	assert.Contains(t, out, "webhook_url: https://discord.example/api/webhooks/1/abc")
	assert.Contains(t, out, "dsn: /var/lib/trader/env.db")

	// Flags still win over the environment.
	out, err = run(t, "config", "show", "--db", "flag.db")
	require.NoError(t, err)
	assert.Contains(t, out, "dsn: flag.db")

	t.Setenv("TRADER_DISCORD_WEBHOOK_URL", "not a url")
	_, err = run(t, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestBacktestCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.Mkdir(dataDir, 0o755))
	writeHistory(t, dataDir, "PTT", 500)
	writeHistory(t, dataDir, "AOT", 450)

	journalPath := filepath.Join(dir, "journal.db")
	cfgPath := filepath.Join(dir, "trader.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
bot:
  name: test-bot
  symbols: [PTT, AOT]
  initial_budget: 100000
data:
  source: csv
  dir: %s
journal:
  type: sqlite
  db_path: %s
`, dataDir, journalPath)), 0o644))

	orgPath := filepath.Join(dir, "run.org")
	out, err := run(t, "backtest", "--config", cfgPath, "--org", orgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Backtest Result")
	assert.Contains(t, out, "Strategy:      sma-cross")
	assert.Contains(t, out, "Start Budget:  100000.00")

	org, err := os.ReadFile(orgPath)
	require.NoError(t, err)
	assert.Contains(t, string(org), "* BACKTEST: sma-cross PTT AOT")

	out, err = run(t, "journal", "runs", "--journal-db", journalPath)
	require.NoError(t, err)
	assert.Contains(t, out, "sma-cross")
	assert.Contains(t, out, "PTT AOT")
}

func TestBacktestCommand_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "trader.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("data:\n  dir: %s\n", dir)), 0o644))

	_, err := run(t, "backtest", "--config", cfgPath, "--from", "01/02/2024")
	assert.ErrorContains(t, err, "bad --from")

	_, err = run(t, "backtest", "--config", cfgPath, "--from", "2024-02-01", "--to", "2024-01-01")
	assert.ErrorContains(t, err, "--from must not be after --to")

	_, err = run(t, "backtest", "--config", cfgPath, "--strategy", "martingale")
	assert.ErrorContains(t, err, "unknown strategy")

	// no csv files at all
	_, err = run(t, "backtest", "--config", cfgPath)
	assert.ErrorContains(t, err, "no price data")
}

func TestDataImportExport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeHistory(t, dir, "PTT", 30)
	dbPath := filepath.Join(dir, "trader.db")
	outDir := filepath.Join(dir, "out")

	out, err := run(t, "data", "import", "--dir", dir, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "PTT")
	assert.Contains(t, out, "30 bars")

	_, err = run(t, "data", "export", "PTT", "--out", outDir, "--db", dbPath)
	require.NoError(t, err)

	fh, err := os.Open(filepath.Join(outDir, "PTT.csv"))
	require.NoError(t, err)
	defer fh.Close()
	bars, err := feed.ReadBars(fh, "PTT")
	require.NoError(t, err)
	assert.Len(t, bars, 30)
}
