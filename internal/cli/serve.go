package cli

import (
	"github.com/spf13/cobra"

	"apples-watch/internal/app"
)

var serveOpts app.ServeOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the alert management JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context(), serveOpts)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.Listen, "listen", "", "Listen address (defaults to server.listen)")
	serveCmd.Flags().StringVar(&serveOpts.AlertsDB, "alerts-db", "", "Alert store path (defaults to config, then alerts.db)")
}
