package cmd

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/canopy-platform/directory-services/db"
	"github.com/canopy-platform/directory-services/internal/appconfig"
)

var migrateCmd = &cobra.Command{
	Use:   "init-db-migrate",
	Short: "Initialize tables and run database migrations",
	Long:  `This job ensures tables exist and then runs goose migrations.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Set the log level
		setLogging(logLevel)

		// Load the config file
		var err error
		appCfg, err = appconfig.LoadConfig(configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}

		if err := os.Setenv("DATABASE_URL", appCfg.Database.Source); err != nil {
			log.Fatal().Err(err).Msg("failed to set DATABASE_URL")
		}

		logger := log.Logger
		directoryDB, err = db.NewDirectoryDB(&logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize DirectoryDB")
		}
		defer directoryDB.Close()

		log.Info().Msgf("Running migrations...")
		if err := directoryDB.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}

		log.Info().Msg("Migrations complete")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
