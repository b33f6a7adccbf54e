package services

import (
	"context"
	"time"

	"github.com/hanko-field/greetings/internal/domain"
	"github.com/hanko-field/greetings/internal/forms"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	CardRecord         = domain.CardRecord
	Photo              = domain.Photo
	SystemHealthReport = domain.SystemHealthReport
)

// Analytics event names.
const (
	EventCardViewed              = "christmas_card_viewed"
	EventFormSubmittedStart      = "form_submitted_start"
	EventFormSubmittedSuccessful = "form_submitted_successful"
)

// CardService creates and loads greeting cards.
type CardService interface {
	// Create validates and persists a template based card.
	Create(ctx context.Context, form forms.CardForm) (CardRecord, error)
	// CreateLegacy persists a photo card, then uploads each photo and attaches
	// the resulting URLs. Photos that fail processing are skipped.
	CreateLegacy(ctx context.Context, form forms.LegacyForm) (CardRecord, error)
	// Get loads a card without side effects.
	Get(ctx context.Context, cardID string) (CardRecord, error)
	// Open loads a card for a recipient and records the view.
	Open(ctx context.Context, cardID string) (CardRecord, error)
}

// SystemService exposes operational metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// TelemetryEvent is one named analytics event.
type TelemetryEvent struct {
	Name       string
	Attributes map[string]string
	OccurredAt time.Time
}

// EventPublisher delivers analytics events to a sink.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event TelemetryEvent) error
}

// Telemetry records analytics events without blocking the caller.
type Telemetry interface {
	Record(ctx context.Context, name string, attributes map[string]string)
}

// CardMetrics receives counters for card operations. *observability.Counters satisfies it.
type CardMetrics interface {
	CardCreated(ctx context.Context, flow string)
	CardViewed(ctx context.Context)
	PhotoSkipped(ctx context.Context, reason string)
}

// TelemetryMetrics counts analytics events that could not be delivered.
type TelemetryMetrics interface {
	EventDropped(ctx context.Context, event string)
}
