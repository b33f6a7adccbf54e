package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/greetings/internal/services"
)

// PubSubPublisher forwards analytics events to a Pub/Sub topic as JSON messages.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

type eventMessage struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt string            `json:"occurredAt"`
}

// NewPubSubPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub telemetry publisher: topic is required")
	}
	return &PubSubPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishEvent sends one event and waits for the server acknowledgement.
func (p *PubSubPublisher) PublishEvent(ctx context.Context, event services.TelemetryEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub telemetry publisher: not initialised")
	}
	name := strings.TrimSpace(event.Name)
	if name == "" {
		return errors.New("pubsub telemetry publisher: event name is required")
	}

	data, err := p.marshal(eventMessage{
		Name:       name,
		Attributes: event.Attributes,
		OccurredAt: event.OccurredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}

	attrs := map[string]string{"event": name}
	if id := strings.TrimSpace(event.Attributes["id"]); id != "" {
		attrs["cardId"] = id
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s event: %w", name, err)
	}
	return nil
}

// Stop flushes pending messages and releases the topic's goroutines.
func (p *PubSubPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
