package cmd

import (
	"github.com/spf13/cobra"

	"meridian/internal/domain"
	"meridian/internal/gather"
	"meridian/internal/store"
)

var importCSVCmd = &cobra.Command{
	Use:   "import-csv",
	Short: "Copy <SYMBOL>.csv bar files into the Parquet store",
	Long: `Import-csv reads <dir>/<SYMBOL>.csv for every symbol and merges the bars
into <data_dir>/us so that backtests can use data_source: parquet.

Example:
  meridian import-csv --dir data/csv --symbols AAPL,MSFT`,
	RunE: runImportCSV,
}

var (
	importDir     string
	importSymbols []string
)

func init() {
	rootCmd.AddCommand(importCSVCmd)

	importCSVCmd.Flags().StringVarP(&importDir, "dir", "d", "", "directory holding the CSV files (default backtest.csv_dir)")
	importCSVCmd.Flags().StringSliceVar(&importSymbols, "symbols", nil, "symbols to import (default backtest.symbols)")
}

func runImportCSV(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	imp := &gather.CSVImporter{
		Dir:     cfg.Backtest.CSVDir,
		Symbols: cfg.Backtest.Symbols,
		Market:  domain.MarketUS,
		Store:   store.NewParquetStore(cfg.Storage.DataDir),
	}
	if importDir != "" {
		imp.Dir = importDir
	}
	if len(importSymbols) > 0 {
		imp.Symbols = importSymbols
	}
	return imp.Run(cmd.Context())
}
