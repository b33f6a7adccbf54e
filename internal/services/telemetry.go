package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hanko-field/greetings/internal/platform/textutil"
)

const defaultTelemetryTimeout = 5 * time.Second

// TelemetryDeps bundles collaborators of the telemetry recorder.
type TelemetryDeps struct {
	Publisher EventPublisher
	Metrics   TelemetryMetrics
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
	Timeout   time.Duration
}

// TelemetryRecorder publishes events in the background. Failures are logged
// and counted but never reach the caller.
type TelemetryRecorder struct {
	publisher EventPublisher
	metrics   TelemetryMetrics
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
	timeout   time.Duration
	inflight  sync.WaitGroup
}

var _ Telemetry = (*TelemetryRecorder)(nil)

// NewTelemetry constructs a recorder around publisher.
func NewTelemetry(deps TelemetryDeps) (*TelemetryRecorder, error) {
	if deps.Publisher == nil {
		return nil, errors.New("telemetry: publisher is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultTelemetryTimeout
	}
	return &TelemetryRecorder{
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
		timeout:   timeout,
	}, nil
}

// Record schedules name for publication. The request context only contributes
// its values; cancellation of the request does not abort the publish.
func (t *TelemetryRecorder) Record(ctx context.Context, name string, attributes map[string]string) {
	if t == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	event := TelemetryEvent{
		Name:       name,
		Attributes: textutil.NormalizeAttributes(attributes),
		OccurredAt: t.clock(),
	}
	detached := context.WithoutCancel(ctx)

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		publishCtx, cancel := context.WithTimeout(detached, t.timeout)
		defer cancel()
		if err := t.publisher.PublishEvent(publishCtx, event); err != nil {
			t.logger(detached, "telemetry.publish_failed", map[string]any{
				"event": name,
				"error": err.Error(),
			})
			if t.metrics != nil {
				t.metrics.EventDropped(detached, name)
			}
		}
	}()
}

// Flush waits for in-flight events or until ctx ends.
func (t *TelemetryRecorder) Flush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type noopTelemetry struct{}

func (noopTelemetry) Record(context.Context, string, map[string]string) {}

type noopCardMetrics struct{}

func (noopCardMetrics) CardCreated(context.Context, string)  {}
func (noopCardMetrics) CardViewed(context.Context)           {}
func (noopCardMetrics) PhotoSkipped(context.Context, string) {}
