package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hanko-field/greetings/internal/domain"
	"github.com/hanko-field/greetings/internal/forms"
	"github.com/hanko-field/greetings/internal/platform/imaging"
	"github.com/hanko-field/greetings/internal/platform/storage"
	"github.com/hanko-field/greetings/internal/repositories"
)

var (
	// ErrCardInvalidInput indicates the submitted form failed validation. The
	// wrapped error is a forms.FieldErrors.
	ErrCardInvalidInput = errors.New("card: invalid input")
	// ErrCardNotFound indicates no card exists for the ID.
	ErrCardNotFound = errors.New("card: not found")
	// ErrCardUnavailable indicates the card store could not be reached.
	ErrCardUnavailable = errors.New("card: unavailable")
)

var errUploadsDisabled = errors.New("card: photo uploads are not configured")

const (
	flowTemplate = "template"
	flowLegacy   = "legacy"
)

// CardCatalog is the template lookup the card service needs.
type CardCatalog interface {
	forms.Catalog
	Resolve(kind domain.TemplateKind, id string) domain.Asset
	Default(kind domain.TemplateKind) domain.Asset
}

// PhotoNormalizer prepares an uploaded photo for storage.
type PhotoNormalizer interface {
	Normalize(ctx context.Context, data []byte) (imaging.Result, error)
}

// CardServiceDeps bundles collaborators required to construct a card service.
type CardServiceDeps struct {
	Cards     repositories.CardRepository
	Catalog   CardCatalog
	Validator *forms.Validator
	Uploader  storage.Uploader
	Images    PhotoNormalizer
	Telemetry Telemetry
	Metrics   CardMetrics
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

type cardService struct {
	cards     repositories.CardRepository
	catalog   CardCatalog
	validator *forms.Validator
	uploader  storage.Uploader
	images    PhotoNormalizer
	telemetry Telemetry
	metrics   CardMetrics
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

var _ CardService = (*cardService)(nil)

// NewCardService wires the card service. Uploader and Images are only needed
// by the legacy photo flow.
func NewCardService(deps CardServiceDeps) (CardService, error) {
	if deps.Cards == nil {
		return nil, errors.New("card service: card repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("card service: catalog is required")
	}
	validator := deps.Validator
	if validator == nil {
		validator = forms.New(deps.Catalog)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	var telemetry Telemetry = noopTelemetry{}
	if deps.Telemetry != nil {
		telemetry = deps.Telemetry
	}
	var metrics CardMetrics = noopCardMetrics{}
	if deps.Metrics != nil {
		metrics = deps.Metrics
	}
	return &cardService{
		cards:     deps.Cards,
		catalog:   deps.Catalog,
		validator: validator,
		uploader:  deps.Uploader,
		images:    deps.Images,
		telemetry: telemetry,
		metrics:   metrics,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

func (s *cardService) Create(ctx context.Context, form forms.CardForm) (CardRecord, error) {
	if errs := s.validator.ValidateCard(form); errs != nil {
		return CardRecord{}, fmt.Errorf("%w: %w", ErrCardInvalidInput, errs)
	}
	s.telemetry.Record(ctx, EventFormSubmittedStart, nil)

	card, err := s.cards.Create(ctx, s.recordFrom(form.Normalize()))
	if err != nil {
		s.logger(ctx, "card.create_failed", map[string]any{"flow": flowTemplate, "error": err.Error()})
		return CardRecord{}, s.mapRepositoryError(err)
	}

	s.metrics.CardCreated(ctx, flowTemplate)
	s.telemetry.Record(ctx, EventFormSubmittedSuccessful, map[string]string{"id": card.ID})
	s.logger(ctx, "card.created", map[string]any{"cardId": card.ID, "flow": flowTemplate})
	return card, nil
}

func (s *cardService) CreateLegacy(ctx context.Context, form forms.LegacyForm) (CardRecord, error) {
	if errs := s.validator.ValidateLegacy(form); errs != nil {
		return CardRecord{}, fmt.Errorf("%w: %w", ErrCardInvalidInput, errs)
	}
	s.telemetry.Record(ctx, EventFormSubmittedStart, map[string]string{"flow": flowLegacy})

	form = form.Normalize()
	card, err := s.cards.Create(ctx, s.recordFrom(form.CardForm))
	if err != nil {
		s.logger(ctx, "card.create_failed", map[string]any{"flow": flowLegacy, "error": err.Error()})
		return CardRecord{}, s.mapRepositoryError(err)
	}

	// Uploads need the card ID, so they run strictly after the create.
	var photos []Photo
	for _, slot := range form.Slots() {
		photo, err := s.storePhoto(ctx, card.ID, slot)
		if err != nil {
			s.metrics.PhotoSkipped(ctx, "process")
			s.logger(ctx, "card.photo_skipped", map[string]any{
				"cardId": card.ID,
				"slot":   slot.Index,
				"error":  err.Error(),
			})
			continue
		}
		photos = append(photos, photo)
	}

	if len(photos) > 0 {
		if err := s.cards.AttachPhotos(ctx, card.ID, photos); err != nil {
			for range photos {
				s.metrics.PhotoSkipped(ctx, "attach")
			}
			s.logger(ctx, "card.attach_photos_failed", map[string]any{"cardId": card.ID, "error": err.Error()})
		} else {
			card.Photos = photos
		}
	}

	s.metrics.CardCreated(ctx, flowLegacy)
	s.telemetry.Record(ctx, EventFormSubmittedSuccessful, map[string]string{"id": card.ID, "flow": flowLegacy})
	s.logger(ctx, "card.created", map[string]any{"cardId": card.ID, "flow": flowLegacy, "photos": len(card.Photos)})
	return card, nil
}

func (s *cardService) Get(ctx context.Context, cardID string) (CardRecord, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return CardRecord{}, fmt.Errorf("%w: card id is required", ErrCardNotFound)
	}
	card, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return CardRecord{}, s.mapRepositoryError(err)
	}
	return card, nil
}

func (s *cardService) Open(ctx context.Context, cardID string) (CardRecord, error) {
	card, err := s.Get(ctx, cardID)
	if err != nil {
		return CardRecord{}, err
	}
	s.metrics.CardViewed(ctx)
	s.telemetry.Record(ctx, EventCardViewed, map[string]string{"id": card.ID})
	return card, nil
}

// recordFrom maps a cleaned form onto a record, filling omitted template ids
// with the catalog defaults.
func (s *cardService) recordFrom(form forms.CardForm) CardRecord {
	card := CardRecord{
		SenderName:              form.SenderName,
		RecipientName:           form.RecipientName,
		Message:                 form.Message,
		SelectedStamp:           form.SelectedStamp,
		SelectedCardTemplateID:  form.SelectedCardTemplateID,
		SelectedCoverTemplateID: form.SelectedCoverTemplateID,
	}
	if card.SelectedCardTemplateID == "" {
		card.SelectedCardTemplateID = s.catalog.Default(domain.KindCard).ID
	}
	if card.SelectedCoverTemplateID == "" {
		card.SelectedCoverTemplateID = s.catalog.Default(domain.KindCover).ID
	}
	return card
}

// storePhoto turns one slot's image source into a stored photo URL.
func (s *cardService) storePhoto(ctx context.Context, cardID string, slot forms.Slot) (Photo, error) {
	photo := Photo{Slot: slot.Index, Caption: slot.Caption}

	switch src := slot.Image.(type) {
	case domain.TemplateRef:
		return s.templatePhoto(photo, src), nil
	case *domain.TemplateRef:
		return s.templatePhoto(photo, *src), nil
	case domain.UploadedAsset:
		return s.uploadPhoto(ctx, cardID, photo, src)
	case *domain.UploadedAsset:
		return s.uploadPhoto(ctx, cardID, photo, *src)
	}
	return Photo{}, fmt.Errorf("unsupported image source %T", slot.Image)
}

func (s *cardService) templatePhoto(photo Photo, ref domain.TemplateRef) Photo {
	asset := s.catalog.Resolve(ref.Kind, ref.ID)
	photo.URL = asset.ImageURL
	return photo
}

func (s *cardService) uploadPhoto(ctx context.Context, cardID string, photo Photo, upload domain.UploadedAsset) (Photo, error) {
	if s.uploader == nil || s.images == nil {
		return Photo{}, errUploadsDisabled
	}
	processed, err := s.images.Normalize(ctx, upload.Data)
	if err != nil {
		return Photo{}, fmt.Errorf("normalise photo: %w", err)
	}
	object, err := storage.BuildObjectPath(storage.PurposeCardPhoto, storage.PathParams{
		CardID:     cardID,
		Slot:       photo.Slot,
		UploadedAt: s.clock(),
		Ext:        processed.Ext,
	})
	if err != nil {
		return Photo{}, err
	}
	url, err := s.uploader.Upload(ctx, object, processed.Data, processed.ContentType)
	if err != nil {
		return Photo{}, fmt.Errorf("upload photo: %w", err)
	}
	photo.URL = url
	photo.ContentType = processed.ContentType
	photo.Width = processed.Width
	photo.Height = processed.Height
	photo.BlurHash = processed.BlurHash
	return photo, nil
}

func (s *cardService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrCardUnavailable, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCardNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrCardUnavailable, err)
}
