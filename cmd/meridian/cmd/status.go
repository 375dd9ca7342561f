package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"meridian/internal/report"
	"meridian/pkg/meridian"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running live monitor",
	Long: `Status prints the state, holdings and positions reported by a running
"meridian live" process, or the recent journaled runs with --runs.

Example:
  meridian status --server http://127.0.0.1:8080`,
	RunE: runStatus,
}

var (
	statusServer string
	statusRuns   int
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusServer, "server", "http://127.0.0.1:8080", "monitor API base URL")
	statusCmd.Flags().IntVar(&statusRuns, "runs", 0, "list this many recent runs instead of the live status")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := meridian.NewClient(statusServer)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if statusRuns > 0 {
		runs, err := c.ListRuns(ctx, statusRuns)
		if err != nil {
			return err
		}
		return enc.Encode(runs)
	}

	st, err := c.GetStatus(ctx)
	if err != nil {
		return err
	}
	positions, err := c.GetPositions(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s, %s): %s\n", st.RunID, st.Mode, st.Strategy, st.State)
	fmt.Fprintf(out, "  As of:      %s\n", st.Time.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "  Cash:       %s\n", report.FormatMoney(st.Cash))
	fmt.Fprintf(out, "  Commission: %s\n", report.FormatMoney(st.Commission))
	fmt.Fprintf(out, "  Total:      %s\n", report.FormatMoney(st.Total))
	return enc.Encode(positions)
}
