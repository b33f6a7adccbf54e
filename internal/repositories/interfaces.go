package repositories

import (
	"context"

	"github.com/hanko-field/greetings/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CardRepository persists greeting cards. Records are written once; only the
// legacy photo flow patches them afterwards.
type CardRepository interface {
	// Create stores card and returns it with the store assigned ID and creation time.
	Create(ctx context.Context, card domain.CardRecord) (domain.CardRecord, error)
	// Get loads a card. A missing card yields a RepositoryError with IsNotFound.
	Get(ctx context.Context, cardID string) (domain.CardRecord, error)
	// AttachPhotos replaces the photo list of an existing card.
	AttachPhotos(ctx context.Context, cardID string, photos []domain.Photo) error
	// Ping checks that the backing store answers.
	Ping(ctx context.Context) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
