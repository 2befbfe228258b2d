package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/canopy-platform/directory-services/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass over all enabled providers",
	Long: `Converges every enabled identity provider onto the roster. Intended to be
invoked periodically; a database lock guarantees passes never overlap, and a
second invocation while one is running exits cleanly.`,
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config, initialize the database and set up logging
		commonSetUp()
		defer directoryDB.Close()

		ctx := context.Background()
		runner, cleanup := buildRunner(ctx)
		defer cleanup()

		report, err := runner.RunOnce(ctx)
		if errors.Is(err, reconcile.ErrRunInProgress) {
			log.Info().Msg("another reconciliation run holds the lock, exiting")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("reconciliation run failed")
		}

		for _, p := range report.Providers {
			log.Info().
				Str("provider", p.Provider).
				Int("users_ensured", p.UsersEnsured).
				Int("users_created", p.UsersCreated).
				Int("users_skipped", p.UsersSkipped).
				Int("memberships_added", p.MembershipsAdded).
				Int("memberships_removed", p.MembershipsRemoved).
				Int("failures", len(p.Failures)).
				Msg("provider pass complete")
		}

		// A nonzero exit tells the scheduler a human should look at the report.
		if report.Failed() {
			log.Error().Str("run_id", report.RunID.String()).Msg("run finished with unit failures")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
