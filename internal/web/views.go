package web

import (
	"html/template"

	"github.com/hanko-field/greetings/internal/domain"
	"github.com/hanko-field/greetings/internal/forms"
)

// Page and fragment names.
const (
	PageForm         = "form"
	PageShared       = "shared"
	PageCard         = "card"
	PageError        = "error"
	FragmentForm     = "frag_form"
	FragmentEnvelope = "frag_envelope"
	FragmentMessage  = "frag_message"
)

// FormView backs the card form page and its htmx fragment.
type FormView struct {
	Intro     template.HTML
	CSRFToken string
	Form      forms.CardForm
	Errors    map[string]string
	Failure   string
	Cards     []domain.Asset
	Covers    []domain.Asset
	Stamps    []domain.Asset
}

// SharedView is shown after a card was saved.
type SharedView struct {
	CardID        string
	RecipientName string
	ShareURL      string
	CardURL       string
}

// ErrorView is a full page error.
type ErrorView struct {
	Heading string
	Detail  string
}
