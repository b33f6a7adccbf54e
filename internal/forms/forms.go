// Package forms validates card submissions before they reach the store.
package forms

import (
	"sort"
	"strings"

	"github.com/hanko-field/greetings/internal/domain"
	"github.com/hanko-field/greetings/internal/platform/textutil"
)

// CardForm is the template based submission.
type CardForm struct {
	SenderName              string `json:"senderName" validate:"required,max=80"`
	RecipientName           string `json:"recipientName" validate:"required,max=80"`
	Message                 string `json:"message" validate:"required,max=2000"`
	SelectedStamp           string `json:"selectedStamp" validate:"required,catalog=stamp"`
	SelectedCardTemplateID  string `json:"selectedCardTemplateId" validate:"omitempty,catalog=card"`
	SelectedCoverTemplateID string `json:"selectedCoverTemplateId" validate:"omitempty,catalog=cover"`
}

// Normalize returns a copy with control characters dropped and whitespace trimmed.
func (f CardForm) Normalize() CardForm {
	f.SenderName = textutil.CleanText(f.SenderName, false)
	f.RecipientName = textutil.CleanText(f.RecipientName, false)
	f.Message = textutil.CleanText(f.Message, true)
	f.SelectedStamp = strings.TrimSpace(f.SelectedStamp)
	f.SelectedCardTemplateID = strings.TrimSpace(f.SelectedCardTemplateID)
	f.SelectedCoverTemplateID = strings.TrimSpace(f.SelectedCoverTemplateID)
	return f
}

// LegacyForm is the photo upload variant. Each slot pairs an image with a caption.
type LegacyForm struct {
	CardForm
	Image1   domain.ImageSource `json:"-"`
	Caption1 string             `json:"caption1" validate:"max=140"`
	Image2   domain.ImageSource `json:"-"`
	Caption2 string             `json:"caption2" validate:"max=140"`
}

// Normalize returns a copy with every text field cleaned.
func (f LegacyForm) Normalize() LegacyForm {
	f.CardForm = f.CardForm.Normalize()
	f.Caption1 = textutil.CleanText(f.Caption1, false)
	f.Caption2 = textutil.CleanText(f.Caption2, false)
	return f
}

// Slot is one image/caption pair of a legacy form.
type Slot struct {
	Index   int
	Image   domain.ImageSource
	Caption string
}

// Slots lists the populated photo slots in order.
func (f LegacyForm) Slots() []Slot {
	var slots []Slot
	for _, slot := range []Slot{{Index: 1, Image: f.Image1, Caption: f.Caption1}, {Index: 2, Image: f.Image2, Caption: f.Caption2}} {
		if domain.HasImage(slot.Image) {
			slots = append(slots, slot)
		}
	}
	return slots
}

// FieldErrors maps a form field name to the message shown next to it.
type FieldErrors map[string]string

// Error lists the failing fields in a stable order.
func (f FieldErrors) Error() string {
	fields := f.Fields()
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+f[field])
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// Fields returns the failing field names sorted.
func (f FieldErrors) Fields() []string {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
