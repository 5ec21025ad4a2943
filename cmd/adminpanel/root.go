package main

import (
	"github.com/spf13/cobra"

	"adminpanel/internal/config"
)

var (
	cfgPath string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:           "adminpanel",
	Short:         "Telegram admin panel with resource monitoring and alerting",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.json", "path to config (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with ADMINPANEL_* overrides")
}

// loadConfig reads the dotenv file (if present) and then the config file.
func loadConfig() (*config.Manager, *config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}
	m := config.NewManager(cfgPath)
	cfg, err := m.Load()
	if err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}
