package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/config"
	"matchfeed/harvester/internal/db"
	"matchfeed/harvester/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "apply Postgres migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(config.ModeMigrate); err != nil {
			return err
		}
		log, err := logging.New(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		version, err := db.MigratePostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		log.Info("migrations applied", zap.Uint("version", version))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
