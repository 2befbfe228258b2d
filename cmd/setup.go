package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	awsclient "github.com/canopy-platform/directory-services/internal/aws"
	"github.com/canopy-platform/directory-services/internal/events"
	"github.com/canopy-platform/directory-services/internal/notify"
	"github.com/canopy-platform/directory-services/internal/reconcile"
	"github.com/canopy-platform/directory-services/internal/roster"
	"github.com/canopy-platform/directory-services/internal/tokenstore"
)

// buildRunner wires the reconciler: AWS clients, token store, provider
// adapters, welcome notifier and the audit publisher. The returned cleanup
// closes the publisher.
func buildRunner(ctx context.Context) (*reconcile.Runner, func()) {
	awsCfg, err := awsclient.LoadAWSConfig(appCfg.AWS.Region)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}

	tokens := tokenstore.New(appCfg.Company.Domain, appCfg.AWS.SecretsPrefix,
		awsclient.NewSecretsManagerClient(awsCfg))

	providers, err := reconcile.BuildProviders(ctx, appCfg, tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build providers")
	}
	if len(providers) == 0 {
		log.Warn().Msg("no providers enabled in config")
	}

	logger := log.Logger
	welcome := notify.New(awsclient.NewSESClient(awsCfg), appCfg, &logger)

	var notifier events.Notifier = events.NopNotifier{}
	cleanup := func() {}
	if appCfg.Pulsar.URL != "" {
		publisher, err := events.NewEventPublisher(appCfg.Pulsar.URL, appCfg.Pulsar.TopicProducer)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event publisher")
		}
		notifier = publisher
		cleanup = publisher.Close
	}

	reconciler := reconcile.New(providers, directoryDB, welcome, notifier,
		appCfg.Reconcile.WorkersPerProvider, &logger)

	runner := &reconcile.Runner{
		Reconciler: reconciler,
		Locker:     directoryDB,
		LoadRoster: func() (*roster.Roster, error) {
			return roster.Load(appCfg.Roster.UsersPath, appCfg.Roster.GroupsPath,
				appCfg.Company.Domain)
		},
		Timeout: time.Duration(appCfg.Reconcile.TimeoutMinutes) * time.Minute,
		Log:     &logger,
	}
	return runner, cleanup
}
