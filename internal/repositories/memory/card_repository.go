// Package memory keeps cards in process for local development and tests.
package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/greetings/internal/domain"
	"github.com/hanko-field/greetings/internal/repositories"
)

// CardRepository is a map backed card store.
type CardRepository struct {
	mu    sync.RWMutex
	cards map[string]domain.CardRecord
	now   func() time.Time
	newID func() string
}

var _ repositories.CardRepository = (*CardRepository)(nil)

// Option customises the memory repository.
type Option func(*CardRepository)

// WithClock overrides the creation time source.
func WithClock(clock func() time.Time) Option {
	return func(r *CardRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithIDGenerator overrides ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *CardRepository) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewCardRepository returns an empty store.
func NewCardRepository(opts ...Option) *CardRepository {
	r := &CardRepository{
		cards: make(map[string]domain.CardRecord),
		now:   time.Now,
		newID: func() string {
			return ulid.MustNew(ulid.Now(), rand.Reader).String()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Create stores a copy of card under a fresh ID.
func (r *CardRepository) Create(ctx context.Context, card domain.CardRecord) (domain.CardRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.CardRecord{}, &Error{op: "cards.create", kind: kindUnavailable, err: err}
	}
	card.ID = r.newID()
	card.CreatedAt = r.now().UTC()
	card.Photos = clonePhotos(card.Photos)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cards[card.ID]; exists {
		return domain.CardRecord{}, &Error{op: "cards.create", kind: kindConflict, err: fmt.Errorf("card %s already exists", card.ID)}
	}
	r.cards[card.ID] = card
	return card, nil
}

// Get returns a copy of the stored card.
func (r *CardRepository) Get(ctx context.Context, cardID string) (domain.CardRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.CardRecord{}, &Error{op: "cards.get", kind: kindUnavailable, err: err}
	}
	r.mu.RLock()
	card, ok := r.cards[strings.TrimSpace(cardID)]
	r.mu.RUnlock()
	if !ok {
		return domain.CardRecord{}, &Error{op: "cards.get", kind: kindNotFound, err: fmt.Errorf("card %q not found", cardID)}
	}
	card.Photos = clonePhotos(card.Photos)
	return card, nil
}

// AttachPhotos replaces the photos of an existing card.
func (r *CardRepository) AttachPhotos(ctx context.Context, cardID string, photos []domain.Photo) error {
	if err := ctx.Err(); err != nil {
		return &Error{op: "cards.attach_photos", kind: kindUnavailable, err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[cardID]
	if !ok {
		return &Error{op: "cards.attach_photos", kind: kindNotFound, err: fmt.Errorf("card %q not found", cardID)}
	}
	card.Photos = clonePhotos(photos)
	r.cards[cardID] = card
	return nil
}

// Ping always succeeds.
func (r *CardRepository) Ping(context.Context) error {
	return nil
}

func clonePhotos(photos []domain.Photo) []domain.Photo {
	if len(photos) == 0 {
		return nil
	}
	return append([]domain.Photo(nil), photos...)
}

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
	kindUnavailable
)

// Error classifies memory store failures like the Firestore layer does.
type Error struct {
	op   string
	kind errorKind
	err  error
}

var _ repositories.RepositoryError = (*Error)(nil)

func (e *Error) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports whether the card does not exist.
func (e *Error) IsNotFound() bool { return e.kind == kindNotFound }

// IsConflict reports an ID collision.
func (e *Error) IsConflict() bool { return e.kind == kindConflict }

// IsUnavailable reports a cancelled or failed call.
func (e *Error) IsUnavailable() bool { return e.kind == kindUnavailable }
