package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []TelemetryEvent
	ctxErr []error
	err    error
	block  chan struct{}
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, event TelemetryEvent) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.ctxErr = append(p.ctxErr, ctx.Err())
	return p.err
}

type droppedCounter struct {
	mu     sync.Mutex
	events []string
}

func (d *droppedCounter) EventDropped(_ context.Context, event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func TestTelemetryRecordPublishesDetachedFromRequest(t *testing.T) {
	now := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{block: make(chan struct{})}
	rec, err := NewTelemetry(TelemetryDeps{Publisher: pub, Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec.Record(ctx, EventCardViewed, map[string]string{"id": " card-1 ", "empty": ""})
	cancel()
	close(pub.block)

	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.events))
	}
	event := pub.events[0]
	if event.Name != EventCardViewed || event.Attributes["id"] != "card-1" || len(event.Attributes) != 1 {
		t.Fatalf("unexpected event %+v", event)
	}
	if !event.OccurredAt.Equal(now) {
		t.Fatalf("unexpected timestamp %s", event.OccurredAt)
	}
	if pub.ctxErr[0] != nil {
		t.Fatalf("request cancellation must not reach the publisher, got %v", pub.ctxErr[0])
	}
}

func TestTelemetryRecordFailureIsLoggedAndCounted(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("topic gone")}
	dropped := &droppedCounter{}
	var (
		mu     sync.Mutex
		logged []string
	)
	rec, err := NewTelemetry(TelemetryDeps{
		Publisher: pub,
		Metrics:   dropped,
		Logger: func(_ context.Context, event string, fields map[string]any) {
			mu.Lock()
			defer mu.Unlock()
			logged = append(logged, event+":"+fields["event"].(string))
		},
	})
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}

	rec.Record(context.Background(), EventFormSubmittedStart, nil)
	rec.Record(context.Background(), "  ", nil)
	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("blank event names must be ignored, got %d events", len(pub.events))
	}
	if len(logged) != 1 || logged[0] != "telemetry.publish_failed:"+EventFormSubmittedStart {
		t.Fatalf("unexpected log entries %v", logged)
	}
	if len(dropped.events) != 1 || dropped.events[0] != EventFormSubmittedStart {
		t.Fatalf("unexpected dropped events %v", dropped.events)
	}
}

func TestTelemetryFlushHonoursContext(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	defer close(pub.block)
	rec, _ := NewTelemetry(TelemetryDeps{Publisher: pub})
	rec.Record(context.Background(), EventCardViewed, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rec.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewTelemetryRequiresPublisher(t *testing.T) {
	if _, err := NewTelemetry(TelemetryDeps{}); err == nil {
		t.Fatalf("expected error without publisher")
	}
}
