package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/greetings/internal/domain"
	"github.com/hanko-field/greetings/internal/forms"
	"github.com/hanko-field/greetings/internal/platform/httpx"
	"github.com/hanko-field/greetings/internal/services"
)

const (
	maxCardRequestBody    = 64 << 10
	defaultMaxUploadBytes = 10 << 20
	multipartMemoryLimit  = 8 << 20
	templatesCacheControl = "public, max-age=300"
)

// CardHandlers exposes the JSON card API.
type CardHandlers struct {
	cards          services.CardService
	catalog        CardCatalog
	links          shareLinks
	maxUploadBytes int64
	submit         []func(http.Handler) http.Handler
}

// CardOption customises construction of CardHandlers.
type CardOption func(*CardHandlers)

// WithCardService injects the card service dependency.
func WithCardService(svc services.CardService) CardOption {
	return func(h *CardHandlers) {
		h.cards = svc
	}
}

// WithCardCatalog injects the template catalog.
func WithCardCatalog(catalog CardCatalog) CardOption {
	return func(h *CardHandlers) {
		h.catalog = catalog
	}
}

// WithCardShareOrigin sets the public origin used for share links.
func WithCardShareOrigin(origin string) CardOption {
	return func(h *CardHandlers) {
		h.links = newShareLinks(origin)
	}
}

// WithCardMaxUploadBytes bounds each photo on the legacy form.
func WithCardMaxUploadBytes(limit int64) CardOption {
	return func(h *CardHandlers) {
		if limit > 0 {
			h.maxUploadBytes = limit
		}
	}
}

// WithCardSubmitMiddleware wraps the create endpoints, typically with
// SubmitRateLimit and the idempotency guard.
func WithCardSubmitMiddleware(mws ...func(http.Handler) http.Handler) CardOption {
	return func(h *CardHandlers) {
		for _, mw := range mws {
			if mw != nil {
				h.submit = append(h.submit, mw)
			}
		}
	}
}

// NewCardHandlers constructs the card API handlers.
func NewCardHandlers(opts ...CardOption) *CardHandlers {
	h := &CardHandlers{maxUploadBytes: defaultMaxUploadBytes}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers card endpoints against the provided router.
func (h *CardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	submit := r
	if len(h.submit) > 0 {
		submit = r.With(h.submit...)
	}
	r.Get("/templates", h.listTemplates)
	submit.Post("/cards", h.createCard)
	submit.Post("/cards/legacy", h.createLegacyCard)
	r.Get("/cards/{cardID}", h.getCard)
}

type templatesResponse struct {
	Cards      []assetPayload              `json:"cards"`
	Covers     []assetPayload              `json:"covers"`
	Stamps     []assetPayload              `json:"stamps"`
	Placements map[string]placementPayload `json:"placements"`
}

func (h *CardHandlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	list := func(kind domain.TemplateKind) []assetPayload {
		assets := h.catalog.List(kind)
		out := make([]assetPayload, 0, len(assets))
		for _, asset := range assets {
			out = append(out, buildAssetPayload(asset))
		}
		return out
	}
	resp := templatesResponse{
		Cards:      list(domain.KindCard),
		Covers:     list(domain.KindCover),
		Stamps:     list(domain.KindStamp),
		Placements: map[string]placementPayload{},
	}
	for id, placement := range h.catalog.Placements() {
		resp.Placements[id] = buildPlacementPayload(placement)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", templatesCacheControl)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

type createCardResponse struct {
	ID       string      `json:"id"`
	ShareURL string      `json:"shareUrl"`
	Card     cardPayload `json:"card"`
}

func (h *CardHandlers) createCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cards == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "card service unavailable", http.StatusServiceUnavailable))
		return
	}

	reader := http.MaxBytesReader(w, r.Body, maxCardRequestBody)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()

	var payload forms.CardForm
	if err := decoder.Decode(&payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest))
		return
	}
	if decoder.More() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid request body: extraneous data", http.StatusBadRequest))
		return
	}

	card, err := h.cards.Create(ctx, payload)
	if err != nil {
		writeCardError(ctx, w, err)
		return
	}
	h.writeCreated(w, r, card)
}

func (h *CardHandlers) createLegacyCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cards == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "card service unavailable", http.StatusServiceUnavailable))
		return
	}

	// Two photos plus the text fields.
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.maxUploadBytes+maxCardRequestBody)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "upload exceeds the allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid multipart body: %v", err), http.StatusBadRequest))
		return
	}
	defer r.MultipartForm.RemoveAll()

	values := url.Values(r.MultipartForm.Value)
	form := forms.LegacyForm{
		CardForm: cardFormFromValues(values),
		Caption1: values.Get("caption1"),
		Caption2: values.Get("caption2"),
	}

	var err error
	if form.Image1, err = h.imageFromMultipart(r.MultipartForm, "image1"); err != nil {
		h.writeUploadError(w, r, err)
		return
	}
	if form.Image2, err = h.imageFromMultipart(r.MultipartForm, "image2"); err != nil {
		h.writeUploadError(w, r, err)
		return
	}

	card, err := h.cards.CreateLegacy(ctx, form)
	if err != nil {
		writeCardError(ctx, w, err)
		return
	}
	h.writeCreated(w, r, card)
}

var errUploadTooLarge = errors.New("upload too large")

// imageFromMultipart reads the file part named field, or a catalog reference
// sent as <field>Template. A slot with neither yields nil.
func (h *CardHandlers) imageFromMultipart(form *multipart.Form, field string) (domain.ImageSource, error) {
	if files := form.File[field]; len(files) > 0 && files[0].Size > 0 {
		header := files[0]
		if header.Size > h.maxUploadBytes {
			return nil, fmt.Errorf("%s: %w", field, errUploadTooLarge)
		}
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		if int64(len(data)) > h.maxUploadBytes {
			return nil, fmt.Errorf("%s: %w", field, errUploadTooLarge)
		}
		return domain.UploadedAsset{
			Filename: header.Filename,
			MIMEType: header.Header.Get("Content-Type"),
			Data:     data,
		}, nil
	}
	if values := form.Value[field+"Template"]; len(values) > 0 && strings.TrimSpace(values[0]) != "" {
		return domain.TemplateRef{Kind: domain.KindCard, ID: strings.TrimSpace(values[0])}, nil
	}
	return nil, nil
}

func (h *CardHandlers) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errUploadTooLarge) {
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

func (h *CardHandlers) writeCreated(w http.ResponseWriter, r *http.Request, card services.CardRecord) {
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/legacy")+"/"+url.PathEscape(card.ID))
	httpx.WriteJSON(w, http.StatusCreated, createCardResponse{
		ID:       card.ID,
		ShareURL: h.links.cardURL(r, card.ID),
		Card:     buildCardPayload(card, h.catalog),
	})
}

func (h *CardHandlers) getCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cards == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "card service unavailable", http.StatusServiceUnavailable))
		return
	}
	card, err := h.cards.Get(ctx, chi.URLParam(r, "cardID"))
	if err != nil {
		writeCardError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCardPayload(card, h.catalog))
}

func cardFormFromValues(values url.Values) forms.CardForm {
	return forms.CardForm{
		SenderName:              values.Get("senderName"),
		RecipientName:           values.Get("recipientName"),
		Message:                 values.Get("message"),
		SelectedStamp:           values.Get("selectedStamp"),
		SelectedCardTemplateID:  values.Get("selectedCardTemplateId"),
		SelectedCoverTemplateID: values.Get("selectedCoverTemplateId"),
	}
}
