package cmd

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/canopy-platform/directory-services/internal/events"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run the Pulsar consumer to record reconciliation audit events",
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config, initialize the database and set up logging
		commonSetUp()
		defer directoryDB.Close()

		consumer, err := events.NewEventConsumer(appCfg.Pulsar.URL,
			appCfg.Pulsar.TopicConsumer, appCfg.Pulsar.Subscription)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event consumer")
		}
		defer consumer.Close()

		log.Info().Str("topic", appCfg.Pulsar.TopicConsumer).Msg("consuming audit events")

		for {
			msg, err := consumer.ReceiveMessage(context.Background())
			if err != nil {
				log.Error().Err(err).Msg("Error receiving message")
				continue
			}

			var event events.EventPayload
			if err := json.Unmarshal(msg.Payload(), &event); err != nil {
				// Malformed payloads cycle to the DLQ after max deliveries.
				log.Error().Err(err).Msg("Error unmarshaling audit event")
				consumer.Nack(msg)
				continue
			}

			err = directoryDB.RecordEvent(event.RunID, event.Provider,
				event.Unit, event.Action, event.Detail)
			if err != nil {
				log.Error().Err(err).Msg("Failed to record audit event")
				consumer.Nack(msg)
				continue
			}
			consumer.Ack(msg)
		}
	},
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}
