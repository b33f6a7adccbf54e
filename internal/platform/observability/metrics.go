package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/hanko-field/greetings")

// Counters groups the application level instruments.
type Counters struct {
	cardsCreated  metric.Int64Counter
	cardViews     metric.Int64Counter
	photosSkipped metric.Int64Counter
	eventsDropped metric.Int64Counter
}

// NewCounters registers the instruments against the global meter provider.
func NewCounters() (*Counters, error) {
	created, err := meter.Int64Counter("cards.created", metric.WithDescription("Cards persisted"))
	if err != nil {
		return nil, err
	}
	views, err := meter.Int64Counter("cards.viewed", metric.WithDescription("Card pages rendered"))
	if err != nil {
		return nil, err
	}
	skipped, err := meter.Int64Counter("cards.photos.skipped", metric.WithDescription("Photos dropped during processing"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("telemetry.events.dropped", metric.WithDescription("Analytics events that failed to publish"))
	if err != nil {
		return nil, err
	}
	return &Counters{
		cardsCreated:  created,
		cardViews:     views,
		photosSkipped: skipped,
		eventsDropped: dropped,
	}, nil
}

// CardCreated records a persisted card for the given flow ("template" or "legacy").
func (c *Counters) CardCreated(ctx context.Context, flow string) {
	if c == nil {
		return
	}
	c.cardsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", flow)))
}

// CardViewed records a rendered card page.
func (c *Counters) CardViewed(ctx context.Context) {
	if c == nil {
		return
	}
	c.cardViews.Add(ctx, 1)
}

// PhotoSkipped records an upload that could not be processed.
func (c *Counters) PhotoSkipped(ctx context.Context, reason string) {
	if c == nil {
		return
	}
	c.photosSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// EventDropped records an analytics event that never reached the sink.
func (c *Counters) EventDropped(ctx context.Context, event string) {
	if c == nil {
		return
	}
	c.eventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
