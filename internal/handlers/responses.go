package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hanko-field/greetings/internal/domain"
	"github.com/hanko-field/greetings/internal/forms"
	"github.com/hanko-field/greetings/internal/platform/httpx"
	"github.com/hanko-field/greetings/internal/presentation"
	"github.com/hanko-field/greetings/internal/services"
)

// CardCatalog is the catalog view the HTTP layer needs.
type CardCatalog interface {
	presentation.Resolver
	List(kind domain.TemplateKind) []domain.Asset
	Placements() map[string]domain.Placement
}

// shareLinks builds absolute card URLs. Without a configured origin the
// request's own scheme and host are used.
type shareLinks struct {
	origin string
}

func newShareLinks(origin string) shareLinks {
	return shareLinks{origin: strings.TrimRight(strings.TrimSpace(origin), "/")}
}

func (s shareLinks) cardURL(r *http.Request, cardID string) string {
	return s.base(r) + cardPath(cardID)
}

func (s shareLinks) base(r *http.Request) string {
	if s.origin != "" {
		return s.origin
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func cardPath(cardID string) string {
	return "/card/" + url.PathEscape(cardID)
}

func sharedPath(cardID string) string {
	return "/cards/" + url.PathEscape(cardID) + "/shared"
}

func writeCardError(ctx context.Context, w http.ResponseWriter, err error) {
	var fields forms.FieldErrors
	switch {
	case errors.Is(err, services.ErrCardInvalidInput):
		errors.As(err, &fields)
		httpx.WriteError(ctx, w, httpx.NewError("invalid_input", "card form is invalid", http.StatusUnprocessableEntity).WithFieldErrors(fields))
	case errors.Is(err, services.ErrCardNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("card_not_found", "card not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCardUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "card service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

type assetPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
	Alt      string `json:"alt,omitempty"`
	Default  bool   `json:"default,omitempty"`
}

type placementPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Align  string  `json:"align"`
	Color  string  `json:"color"`
}

type photoPayload struct {
	Slot     int    `json:"slot"`
	URL      string `json:"url"`
	Caption  string `json:"caption,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	BlurHash string `json:"blurHash,omitempty"`
}

type cardPayload struct {
	ID                      string           `json:"id"`
	SenderName              string           `json:"senderName"`
	RecipientName           string           `json:"recipientName"`
	Message                 string           `json:"message"`
	SelectedStamp           string           `json:"selectedStamp"`
	SelectedCardTemplateID  string           `json:"selectedCardTemplateId"`
	SelectedCoverTemplateID string           `json:"selectedCoverTemplateId"`
	Photos                  []photoPayload   `json:"photos,omitempty"`
	CreatedAt               string           `json:"createdAt,omitempty"`
	Card                    assetPayload     `json:"card"`
	Cover                   assetPayload     `json:"cover"`
	Stamp                   assetPayload     `json:"stamp"`
	Placement               placementPayload `json:"placement"`
}

func buildAssetPayload(asset domain.Asset) assetPayload {
	return assetPayload{
		ID:       asset.ID,
		Name:     asset.Name,
		ImageURL: asset.ImageURL,
		Alt:      asset.Alt,
		Default:  asset.Default,
	}
}

func buildPlacementPayload(p domain.Placement) placementPayload {
	return placementPayload{
		X:      p.X,
		Y:      p.Y,
		Width:  p.Width,
		Height: p.Height,
		Align:  string(p.Align),
		Color:  p.Color,
	}
}

func buildCardPayload(card services.CardRecord, catalog CardCatalog) cardPayload {
	payload := cardPayload{
		ID:                      card.ID,
		SenderName:              card.SenderName,
		RecipientName:           card.RecipientName,
		Message:                 card.Message,
		SelectedStamp:           card.SelectedStamp,
		SelectedCardTemplateID:  card.SelectedCardTemplateID,
		SelectedCoverTemplateID: card.SelectedCoverTemplateID,
		CreatedAt:               formatTime(card.CreatedAt),
	}
	if catalog != nil {
		cardAsset := catalog.Resolve(domain.KindCard, card.SelectedCardTemplateID)
		payload.Card = buildAssetPayload(cardAsset)
		payload.Cover = buildAssetPayload(catalog.Resolve(domain.KindCover, card.SelectedCoverTemplateID))
		payload.Stamp = buildAssetPayload(catalog.Resolve(domain.KindStamp, card.SelectedStamp))
		payload.Placement = buildPlacementPayload(catalog.PlacementFor(cardAsset.ID))
	}
	for _, photo := range card.Photos {
		payload.Photos = append(payload.Photos, photoPayload{
			Slot:     photo.Slot,
			URL:      photo.URL,
			Caption:  photo.Caption,
			Width:    photo.Width,
			Height:   photo.Height,
			BlurHash: photo.BlurHash,
		})
	}
	return payload
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
