package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adminpanel/internal/app"
	logx "adminpanel/pkg/logx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema and seed the administrator",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "migrate"))
		st, err := app.Migrate(cmd.Context(), cfg, log)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema ready: %d users, %d activities, %d alerts (%d open)\n",
			st.Users, st.Activities, st.Alerts, st.UnresolvedOpen)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
