package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/google/uuid"
)

// EventPayload is one audit record from a reconciliation pass.
type EventPayload struct {
	RunID    uuid.UUID `json:"run_id"`
	Provider string    `json:"provider"`
	Unit     string    `json:"unit"`   // username or group name
	Action   string    `json:"action"` // user.ensured, membership.added, ...
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Audit actions published by the reconciliation driver.
const (
	ActionUserEnsured       = "user.ensured"
	ActionUserDeleted       = "user.deleted"
	ActionGroupEnsured      = "group.ensured"
	ActionGroupDeleted      = "group.deleted"
	ActionMembershipAdded   = "membership.added"
	ActionMembershipRemoved = "membership.removed"
	ActionUnitFailed        = "unit.failed"
	ActionUserWelcomed      = "user.welcomed"
)

// Notifier is the audit sink the driver writes to. The Pulsar publisher is
// the production implementation; tests substitute their own.
type Notifier interface {
	Notify(event EventPayload) error
	Close()
}

type EventPublisher struct {
	client   pulsar.Client
	producer pulsar.Producer
}

// NewEventPublisher initializes the Pulsar client and producer.
func NewEventPublisher(pulsarURL, topic string) (*EventPublisher, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: pulsarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Pulsar client: %w", err)
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: topic,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("could not create Pulsar producer: %w", err)
	}

	return &EventPublisher{client: client, producer: producer}, nil
}

// Notify publishes one audit event.
func (p *EventPublisher) Notify(event EventPayload) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not serialize event payload: %w", err)
	}

	_, err = p.producer.Send(context.Background(), &pulsar.ProducerMessage{
		Payload: message,
		Key:     event.RunID.String(),
	})
	if err != nil {
		return fmt.Errorf("could not send event to Pulsar: %w", err)
	}
	return nil
}

// Close closes the Pulsar client and producer.
func (p *EventPublisher) Close() {
	p.producer.Close()
	p.client.Close()
}

// NopNotifier discards events. Used when Pulsar is not configured.
type NopNotifier struct{}

func (NopNotifier) Notify(EventPayload) error { return nil }
func (NopNotifier) Close()                    {}
