package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/greetings/internal/domain"
	"github.com/hanko-field/greetings/internal/forms"
	"github.com/hanko-field/greetings/internal/platform/httpx"
	"github.com/hanko-field/greetings/internal/platform/requestctx"
	"github.com/hanko-field/greetings/internal/presentation"
	"github.com/hanko-field/greetings/internal/services"
	"github.com/hanko-field/greetings/internal/web"
)

const (
	sessionParam = "session"

	textCardNotFound  = "Card not found!"
	textFetchFailed   = "Error fetching card"
	textSaveFailed    = "Error saving message. Please try again."
	textTryAgainLater = "Please try again in a moment."
)

// PageRenderer renders full pages and htmx fragments.
type PageRenderer interface {
	Page(w http.ResponseWriter, status int, name string, page web.Page) error
	Fragment(w http.ResponseWriter, status int, name string, data any) error
}

// PageHandlers serves the card form, the share page and the card viewer.
type PageHandlers struct {
	cards    services.CardService
	catalog  CardCatalog
	renderer PageRenderer
	sessions *presentation.Sessions
	links    shareLinks
	intro    template.HTML
	submit   func(http.Handler) http.Handler
}

// PageOption customises construction of PageHandlers.
type PageOption func(*PageHandlers)

// WithPageCardService injects the card service dependency.
func WithPageCardService(svc services.CardService) PageOption {
	return func(h *PageHandlers) {
		h.cards = svc
	}
}

// WithPageCatalog injects the template catalog.
func WithPageCatalog(catalog CardCatalog) PageOption {
	return func(h *PageHandlers) {
		h.catalog = catalog
	}
}

// WithPageRenderer injects the template renderer.
func WithPageRenderer(renderer PageRenderer) PageOption {
	return func(h *PageHandlers) {
		h.renderer = renderer
	}
}

// WithPageSessions injects the viewer session store.
func WithPageSessions(sessions *presentation.Sessions) PageOption {
	return func(h *PageHandlers) {
		h.sessions = sessions
	}
}

// WithPageShareOrigin sets the public origin used for share links.
func WithPageShareOrigin(origin string) PageOption {
	return func(h *PageHandlers) {
		h.links = newShareLinks(origin)
	}
}

// WithPageIntro sets the landing copy shown above the form.
func WithPageIntro(intro template.HTML) PageOption {
	return func(h *PageHandlers) {
		h.intro = intro
	}
}

// WithPageSubmitMiddleware wraps the form submission route.
func WithPageSubmitMiddleware(mw func(http.Handler) http.Handler) PageOption {
	return func(h *PageHandlers) {
		h.submit = mw
	}
}

// NewPageHandlers constructs the page handlers.
func NewPageHandlers(opts ...PageOption) *PageHandlers {
	h := &PageHandlers{}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.sessions == nil {
		h.sessions = presentation.NewSessions()
	}
	return h
}

// Routes registers the page and fragment routes.
func (h *PageHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	submit := r
	if h.submit != nil {
		submit = r.With(h.submit)
	}
	r.Get("/", h.showForm)
	submit.Post("/cards", h.submitForm)
	r.Get("/cards/{cardID}/shared", h.showShared)
	r.Get("/card/{cardID}", h.showCard)
	r.Post("/card/{cardID}/envelope", h.activateEnvelope)
	r.Get("/card/{cardID}/envelope", h.showEnvelope)
	r.Post("/card/{cardID}/message", h.openMessage)
	r.Delete("/card/{cardID}/message", h.closeMessage)
	r.Delete("/card/{cardID}/session", h.endSession)
}

func (h *PageHandlers) formView(ctx context.Context, form forms.CardForm, errs forms.FieldErrors) web.FormView {
	view := web.FormView{
		Intro:     h.intro,
		CSRFToken: web.CSRFToken(ctx),
		Form:      form,
		Errors:    map[string]string(errs),
	}
	if h.catalog != nil {
		view.Cards = h.catalog.List(domain.KindCard)
		view.Covers = h.catalog.List(domain.KindCover)
		view.Stamps = h.catalog.List(domain.KindStamp)
		if view.Form.SelectedCardTemplateID == "" && len(view.Cards) > 0 {
			view.Form.SelectedCardTemplateID = h.catalog.Resolve(domain.KindCard, "").ID
		}
		if view.Form.SelectedCoverTemplateID == "" && len(view.Covers) > 0 {
			view.Form.SelectedCoverTemplateID = h.catalog.Resolve(domain.KindCover, "").ID
		}
	}
	return view
}

func (h *PageHandlers) showForm(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, http.StatusOK, web.PageForm, "Create a card", h.formView(r.Context(), forms.CardForm{}, nil))
}

func (h *PageHandlers) submitForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid form body", http.StatusBadRequest))
		return
	}
	form := cardFormFromValues(r.PostForm)

	if h.cards == nil {
		h.formFailure(w, r, form, nil, http.StatusServiceUnavailable, textSaveFailed)
		return
	}

	card, err := h.cards.Create(ctx, form)
	if err != nil {
		var fields forms.FieldErrors
		switch {
		case errors.Is(err, services.ErrCardInvalidInput) && errors.As(err, &fields):
			h.formFailure(w, r, form.Normalize(), fields, http.StatusUnprocessableEntity, "")
		default:
			requestctx.Logger(ctx).Warn("card.submit_failed", zap.Error(err))
			h.formFailure(w, r, form, nil, http.StatusServiceUnavailable, textSaveFailed)
		}
		return
	}

	target := sharedPath(card.ID)
	if requestctx.IsHTMX(ctx) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *PageHandlers) formFailure(w http.ResponseWriter, r *http.Request, form forms.CardForm, errs forms.FieldErrors, status int, failure string) {
	view := h.formView(r.Context(), form, errs)
	view.Failure = failure
	if requestctx.IsHTMX(r.Context()) {
		// htmx does not swap non-2xx responses.
		h.fragment(w, r, http.StatusOK, web.FragmentForm, view)
		return
	}
	h.page(w, r, status, web.PageForm, "Create a card", view)
}

func (h *PageHandlers) showShared(w http.ResponseWriter, r *http.Request) {
	card, ok := h.loadCard(w, r, false)
	if !ok {
		return
	}
	h.page(w, r, http.StatusOK, web.PageShared, "Share your card", web.SharedView{
		CardID:        card.ID,
		RecipientName: card.RecipientName,
		ShareURL:      h.links.cardURL(r, card.ID),
		CardURL:       cardPath(card.ID),
	})
}

func (h *PageHandlers) showCard(w http.ResponseWriter, r *http.Request) {
	card, ok := h.loadCard(w, r, true)
	if !ok {
		return
	}
	session := h.sessions.Start(card.ID)
	view := presentation.BuildView(card, h.catalog).WithSession(session)
	h.page(w, r, http.StatusOK, web.PageCard, "A card for "+view.To, view)
}

func (h *PageHandlers) activateEnvelope(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, web.FragmentEnvelope, func(s *presentation.Session) {
		s.Envelope.Activate()
	})
}

func (h *PageHandlers) showEnvelope(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, web.FragmentEnvelope, nil)
}

func (h *PageHandlers) openMessage(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, web.FragmentMessage, func(s *presentation.Session) {
		s.Envelope.OpenMessage()
	})
}

func (h *PageHandlers) closeMessage(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, web.FragmentMessage, func(s *presentation.Session) {
		s.Envelope.CloseMessage()
	})
}

func (h *PageHandlers) endSession(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	if id := sessionID(r); id != "" {
		if _, ok := h.sessions.Lookup(id, cardID); ok {
			h.sessions.End(id)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// withSession applies fn to the caller's view session and renders fragment.
// An expired or unknown session is replaced by a fresh one for the same card.
func (h *PageHandlers) withSession(w http.ResponseWriter, r *http.Request, fragment string, fn func(*presentation.Session)) {
	card, ok := h.loadCard(w, r, false)
	if !ok {
		return
	}
	session, found := h.sessions.Lookup(sessionID(r), card.ID)
	if !found {
		session = h.sessions.Start(card.ID)
	}
	if fn != nil {
		fn(session)
	}
	view := presentation.BuildView(card, h.catalog).WithSession(session)
	h.fragment(w, r, http.StatusOK, fragment, view)
}

// loadCard fetches the card named in the path and renders the error page on
// failure. open records a recipient view.
func (h *PageHandlers) loadCard(w http.ResponseWriter, r *http.Request, open bool) (services.CardRecord, bool) {
	ctx := r.Context()
	cardID := strings.TrimSpace(chi.URLParam(r, "cardID"))
	if h.cards == nil {
		h.errorPage(w, r, http.StatusServiceUnavailable, textFetchFailed, textTryAgainLater)
		return services.CardRecord{}, false
	}

	load := h.cards.Get
	if open {
		load = h.cards.Open
	}
	card, err := load(ctx, cardID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCardNotFound):
			h.errorPage(w, r, http.StatusNotFound, textCardNotFound, "")
		default:
			requestctx.Logger(ctx).Warn("card.load_failed", zap.String("card_id", cardID), zap.Error(err))
			h.errorPage(w, r, http.StatusServiceUnavailable, textFetchFailed, textTryAgainLater)
		}
		return services.CardRecord{}, false
	}
	return card, true
}

func (h *PageHandlers) errorPage(w http.ResponseWriter, r *http.Request, status int, heading, detail string) {
	h.page(w, r, status, web.PageError, heading, web.ErrorView{Heading: heading, Detail: detail})
}

func (h *PageHandlers) page(w http.ResponseWriter, r *http.Request, status int, name, title string, body any) {
	if h.renderer == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("render_unavailable", "page renderer unavailable", http.StatusInternalServerError))
		return
	}
	err := h.renderer.Page(w, status, name, web.Page{
		Title:     title,
		CSRFToken: web.CSRFToken(r.Context()),
		Body:      body,
	})
	if err != nil {
		h.renderFailed(w, r, name, err)
	}
}

func (h *PageHandlers) fragment(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if h.renderer == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("render_unavailable", "page renderer unavailable", http.StatusInternalServerError))
		return
	}
	if err := h.renderer.Fragment(w, status, name, data); err != nil {
		h.renderFailed(w, r, name, err)
	}
}

func (h *PageHandlers) renderFailed(w http.ResponseWriter, r *http.Request, name string, err error) {
	requestctx.Logger(r.Context()).Error("page.render_failed", zap.String("template", name), zap.Error(err))
	httpx.WriteError(r.Context(), w, httpx.NewError("render_failed", "failed to render page", http.StatusInternalServerError))
}

func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get(sessionParam)); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-View-Session"))
}
