package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/hanko-field/greetings/internal/domain"
	pfirestore "github.com/hanko-field/greetings/internal/platform/firestore"
	"github.com/hanko-field/greetings/internal/repositories"
)

// DefaultCardCollection is where cards live unless configured otherwise.
const DefaultCardCollection = "christmasCards"

// CardRepository stores cards in a single top-level collection.
type CardRepository struct {
	base *pfirestore.BaseRepository[cardDocument]
}

var _ repositories.CardRepository = (*CardRepository)(nil)

type cardDocument struct {
	SenderName              string          `firestore:"senderName"`
	RecipientName           string          `firestore:"recipientName"`
	Message                 string          `firestore:"message"`
	SelectedStamp           string          `firestore:"selectedStamp"`
	SelectedCardTemplateID  string          `firestore:"selectedCardTemplateId"`
	SelectedCoverTemplateID string          `firestore:"selectedCoverTemplateId"`
	Photos                  []photoDocument `firestore:"photos,omitempty"`
	CreatedAt               time.Time       `firestore:"createdAt,serverTimestamp"`
}

type photoDocument struct {
	Slot        int    `firestore:"slot"`
	URL         string `firestore:"url"`
	Caption     string `firestore:"caption"`
	ContentType string `firestore:"contentType,omitempty"`
	Width       int    `firestore:"width,omitempty"`
	Height      int    `firestore:"height,omitempty"`
	BlurHash    string `firestore:"blurHash,omitempty"`
}

// NewCardRepository constructs a Firestore-backed card repository.
func NewCardRepository(provider *pfirestore.Provider, collection string) (*CardRepository, error) {
	if provider == nil {
		return nil, errors.New("card repository requires firestore provider")
	}
	if collection == "" {
		collection = DefaultCardCollection
	}
	return &CardRepository{
		base: pfirestore.NewBaseRepository[cardDocument](provider, collection, nil, nil),
	}, nil
}

// Create writes card under a Firestore generated ID. The creation time comes from the server.
func (r *CardRepository) Create(ctx context.Context, card domain.CardRecord) (domain.CardRecord, error) {
	doc := encodeCard(card)
	doc.CreatedAt = time.Time{}
	id, written, err := r.base.Create(ctx, doc)
	if err != nil {
		return domain.CardRecord{}, err
	}
	card.ID = id
	card.CreatedAt = written.UTC()
	return card, nil
}

// Get loads the card with cardID.
func (r *CardRepository) Get(ctx context.Context, cardID string) (domain.CardRecord, error) {
	doc, err := r.base.Get(ctx, cardID)
	if err != nil {
		return domain.CardRecord{}, err
	}
	card := decodeCard(doc.Data)
	card.ID = doc.ID
	if card.CreatedAt.IsZero() {
		card.CreatedAt = doc.CreateTime.UTC()
	}
	return card, nil
}

// AttachPhotos sets the photo list of an existing card.
func (r *CardRepository) AttachPhotos(ctx context.Context, cardID string, photos []domain.Photo) error {
	_, err := r.base.Update(ctx, cardID, []firestore.Update{
		{Path: "photos", Value: encodePhotos(photos)},
	})
	return err
}

// Ping checks that the card collection is readable.
func (r *CardRepository) Ping(ctx context.Context) error {
	return r.base.Ping(ctx)
}

func encodeCard(card domain.CardRecord) cardDocument {
	return cardDocument{
		SenderName:              card.SenderName,
		RecipientName:           card.RecipientName,
		Message:                 card.Message,
		SelectedStamp:           card.SelectedStamp,
		SelectedCardTemplateID:  card.SelectedCardTemplateID,
		SelectedCoverTemplateID: card.SelectedCoverTemplateID,
		Photos:                  encodePhotos(card.Photos),
		CreatedAt:               card.CreatedAt,
	}
}

func decodeCard(doc cardDocument) domain.CardRecord {
	card := domain.CardRecord{
		SenderName:              doc.SenderName,
		RecipientName:           doc.RecipientName,
		Message:                 doc.Message,
		SelectedStamp:           doc.SelectedStamp,
		SelectedCardTemplateID:  doc.SelectedCardTemplateID,
		SelectedCoverTemplateID: doc.SelectedCoverTemplateID,
	}
	if !doc.CreatedAt.IsZero() {
		card.CreatedAt = doc.CreatedAt.UTC()
	}
	for _, p := range doc.Photos {
		card.Photos = append(card.Photos, domain.Photo(p))
	}
	return card
}

func encodePhotos(photos []domain.Photo) []photoDocument {
	if len(photos) == 0 {
		return nil
	}
	docs := make([]photoDocument, 0, len(photos))
	for _, p := range photos {
		docs = append(docs, photoDocument(p))
	}
	return docs
}
