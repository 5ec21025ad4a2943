package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adminpanel/internal/app"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Sample resources once and print the alert decision",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		u, alert, err := app.Check(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, u.String())
		if alert == "" {
			fmt.Fprintln(out, "OK")
			return nil
		}
		fmt.Fprintln(out, alert)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
