package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hanko-field/greetings/internal/domain"
	"github.com/hanko-field/greetings/internal/repositories"
)

func TestCardRepositoryLifecycle(t *testing.T) {
	now := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)
	repo := NewCardRepository(
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "card-1" }),
	)
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.CardRecord{SenderName: "Alex", RecipientName: "Sam", Message: "Hi"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "card-1" || !created.CreatedAt.Equal(now) {
		t.Fatalf("unexpected card %+v", created)
	}

	if err := repo.AttachPhotos(ctx, "card-1", []domain.Photo{{Slot: 1, URL: "/uploads/a.jpg"}}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	got, err := repo.Get(ctx, "card-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SenderName != "Alex" || len(got.Photos) != 1 {
		t.Fatalf("unexpected card %+v", got)
	}

	got.Photos[0].URL = "mutated"
	again, _ := repo.Get(ctx, "card-1")
	if again.Photos[0].URL != "/uploads/a.jpg" {
		t.Fatalf("stored photos must not alias returned slices")
	}

	if _, err := repo.Create(ctx, domain.CardRecord{}); err == nil {
		t.Fatalf("expected conflict on duplicate id")
	} else {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			t.Fatalf("expected conflict, got %v", err)
		}
	}
}

func TestCardRepositoryNotFound(t *testing.T) {
	repo := NewCardRepository()
	_, err := repo.Get(context.Background(), "missing")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.AttachPhotos(context.Background(), "missing", nil); err == nil {
		t.Fatalf("expected not found on attach")
	}
}

func TestCardRepositoryCancelledContext(t *testing.T) {
	repo := NewCardRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.Create(ctx, domain.CardRecord{})
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsUnavailable() {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestCardRepositoryGeneratesULIDs(t *testing.T) {
	repo := NewCardRepository()
	card, err := repo.Create(context.Background(), domain.CardRecord{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(card.ID) != 26 {
		t.Fatalf("expected ulid id, got %q", card.ID)
	}
}
