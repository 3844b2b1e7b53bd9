package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/zaqqye/seb_proctoring/internal/database"
	"github.com/zaqqye/seb_proctoring/internal/logging"
)

var flagSeed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logging.Setup(cfg.LogLevel)

		db, err := database.Connect(cfg)
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		if flagSeed {
			if err := database.SeedAdmin(db, cfg); err != nil {
				return err
			}
		}
		slog.Info("migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&flagSeed, "seed", true, "Seed the initial admin account")
	rootCmd.AddCommand(migrateCmd)
}
