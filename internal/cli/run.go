package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"apples-watch/internal/app"
)

var runOpts app.RunOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch offers once, persist the selections and evaluate alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOpts.Top < 0 {
			return errors.New("--top must not be negative")
		}
		return getApp().RunOnce(cmd.Context(), runOpts)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the batch job on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context(), runOpts)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

func bindSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runOpts.URL, "url", "", "Comparison page URL (defaults to config)")
	cmd.Flags().StringVar(&runOpts.CSVPath, "csv", "", "CSV snapshot path (defaults to config)")
	cmd.Flags().BoolVar(&runOpts.NoCSV, "no-csv", false, "Disable the CSV sink")
	cmd.Flags().BoolVar(&runOpts.Insecure, "insecure", false, "Skip TLS certificate verification")
	cmd.Flags().StringVar(&runOpts.AlertsDB, "alerts-db", "", "SQLite alert store; alerts are evaluated only when set")
}

func init() {
	bindSourceFlags(runCmd)
	runCmd.Flags().IntVar(&runOpts.Top, "top", 5, "Print the N cheapest eligible offers")
	runCmd.Flags().BoolVar(&runOpts.JSON, "json", false, "Print the overall selection as JSON")
	runCmd.Flags().StringVar(&runOpts.FromFile, "from-file", "", "Parse a saved page instead of fetching")

	bindSourceFlags(watchCmd)
}
