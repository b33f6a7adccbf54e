package telemetry

import (
	"context"

	"go.uber.org/zap"

	"github.com/hanko-field/greetings/internal/services"
)

// LogPublisher writes events to the application log. It backs local runs and
// deployments without a telemetry topic.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a publisher that never fails.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("telemetry")}
}

// PublishEvent logs the event at info level.
func (p *LogPublisher) PublishEvent(_ context.Context, event services.TelemetryEvent) error {
	p.logger.Info("analytics event",
		zap.String("event", event.Name),
		zap.Any("attributes", event.Attributes),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
