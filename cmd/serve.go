package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/canopy-platform/directory-services/api/handlers"
	"github.com/canopy-platform/directory-services/api/middleware"
	"github.com/canopy-platform/directory-services/api/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server for handling API requests",
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config, initialize the database and set up logging
		commonSetUp()

		runner, cleanup := buildRunner(context.Background())
		defer cleanup()

		service := &services.Service{
			Config: appCfg,
			DB:     directoryDB,
			Runner: runner,
		}

		r := mux.NewRouter()

		// Register the routes
		api := r.PathPrefix(appCfg.BasePath).Subrouter()

		// Apply the middleware to the API routes
		api.Use(middleware.WithLogger)
		api.Use(middleware.JWTMiddleware)

		// Directory routes
		api.HandleFunc("/users", handlers.GetUsers(service)).Methods(http.MethodGet)
		api.HandleFunc("/users/{username}", handlers.GetUser(service)).Methods(http.MethodGet)
		api.HandleFunc("/groups", handlers.GetGroups(service)).Methods(http.MethodGet)
		api.HandleFunc("/groups/{group-name}", handlers.GetGroup(service)).Methods(http.MethodGet)
		api.HandleFunc("/groups/{group-name}/members", handlers.GetGroupMembers(service)).Methods(http.MethodGet)

		// Reconciliation routes
		api.HandleFunc("/reconcile", handlers.TriggerReconcile(service)).Methods(http.MethodPost)
		api.HandleFunc("/reconcile/runs", handlers.GetRuns(service)).Methods(http.MethodGet)
		api.HandleFunc("/reconcile/runs/{run-id}", handlers.GetRun(service)).Methods(http.MethodGet)

		log.Info().Msg(fmt.Sprintf("Server started at %s:%d", host, port))

		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", host, port), r); err != nil {
			log.Error().Err(err).Msg("could not start server")
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&host, "host", "0.0.0.0", "host to bind")
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to bind")
	rootCmd.AddCommand(serveCmd)
}
