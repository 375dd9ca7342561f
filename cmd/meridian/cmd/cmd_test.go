package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/internal/domain"
	"meridian/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "meridian "+version+"\n", out)
}

func TestConfigInitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meridian.yaml")

	_, err := execute(t, "config", "init", "-o", path, "--symbols", "SPY,QQQ")
	require.NoError(t, err)

	out, err := execute(t, "config", "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "[SPY QQQ]")
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backtest:\n  symbols: []\n"), 0o644))

	_, err := execute(t, "config", "validate", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backtest.symbols must not be empty")
}

func TestClip(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	bars := map[string][]domain.Bar{
		"AAPL": {{Timestamp: day(1)}, {Timestamp: day(2)}, {Timestamp: day(3)}, {Timestamp: day(4)}},
	}

	got := clip(bars, day(2), day(3))
	require.Len(t, got["AAPL"], 2)
	assert.Equal(t, day(2), got["AAPL"][0].Timestamp)
	assert.Equal(t, day(3), got["AAPL"][1].Timestamp)

	open := clip(bars, day(3), time.Time{})
	assert.Len(t, open["AAPL"], 2)
}

func TestBacktestFromCSV(t *testing.T) {
	dir := t.TempDir()
	csvDir := filepath.Join(dir, "csv")
	require.NoError(t, os.MkdirAll(csvDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(csvDir, "AAPL.csv"), []byte(
		"datetime,open,high,low,close,volume\n"+
			"2024-01-02,50,50,50,50,1000\n"+
			"2024-01-03,55,55,55,55,1000\n"+
			"2024-01-04,60,60,60,60,1000\n"), 0o644))

	dbPath := filepath.Join(dir, "meridian.db")
	reportDir := filepath.Join(dir, "reports")
	cfgPath := filepath.Join(dir, "meridian.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
storage:
  data_dir: %s
  sqlite_path: %s
  report_dir: %s
logging:
  level: error
backtest:
  symbols: [AAPL]
  initial_capital: 100000
  start_date: "2024-01-01"
  data_source: csv
  csv_dir: %s
strategy:
  name: buy_and_hold
`, dir, dbPath, reportDir, csvDir)), 0o644))

	out, err := execute(t, "backtest", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Backtest complete")
	assert.Contains(t, out, "fills 1")

	journal, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer journal.Close()

	runs, err := journal.ListRuns(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunFinished, runs[0].Status)
	assert.Equal(t, "buy_and_hold", runs[0].Strategy)

	rows, err := journal.ListEquity(t.Context(), runs[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.InDelta(t, 1.0, rows[0].Growth, 1e-12)

	for _, name := range []string{runs[0].ID + "-equity.csv", runs[0].ID + "-equity.html"} {
		_, err := os.Stat(filepath.Join(reportDir, name))
		assert.NoError(t, err, name)
	}
}
