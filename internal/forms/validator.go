package forms

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hanko-field/greetings/internal/domain"
)

const (
	tagCatalog         = "catalog"
	tagCaptionRequired = "captionrequired"
	tagImageRequired   = "imagerequired"
	tagImageType       = "imagetype"
)

var acceptedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

var requiredMessages = map[string]string{
	"senderName":    "Your name is required",
	"recipientName": "Recipient's name is required",
	"message":       "Message is required",
	"selectedStamp": "Please select a stamp",
}

var catalogMessages = map[domain.TemplateKind]string{
	domain.KindStamp: "Please select a stamp",
	domain.KindCard:  "Please select a card design",
	domain.KindCover: "Please select an envelope cover",
}

var fieldLabels = map[string]string{
	"senderName":    "Your name",
	"recipientName": "Recipient's name",
	"message":       "Message",
	"caption1":      "Caption",
	"caption2":      "Caption",
}

var ordinals = map[string]string{"1": "first", "2": "second"}

// Catalog reports whether a template id exists.
type Catalog interface {
	Contains(kind domain.TemplateKind, id string) bool
}

// Validator wraps go-playground/validator with the card form rules.
type Validator struct {
	v       *validator.Validate
	catalog Catalog
}

// New creates a validator checking template ids against catalog.
func New(catalog Catalog) *Validator {
	if catalog == nil {
		panic("forms: catalog is required")
	}
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	out := &Validator{v: v, catalog: catalog}
	if err := v.RegisterValidation(tagCatalog, out.validateCatalog); err != nil {
		panic(fmt.Sprintf("forms: register %s: %v", tagCatalog, err))
	}
	v.RegisterStructValidation(out.validatePhotoSlots, LegacyForm{})
	return out
}

// ValidateCard checks the template form. Every rule is evaluated; the result
// is nil when the form is acceptable.
func (v *Validator) ValidateCard(form CardForm) FieldErrors {
	return v.validate(form.Normalize())
}

// ValidateLegacy checks the photo form, including the image/caption pairing of
// each slot.
func (v *Validator) ValidateLegacy(form LegacyForm) FieldErrors {
	return v.validate(form.Normalize())
}

func (v *Validator) validate(s any) FieldErrors {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return FieldErrors{"form": "is invalid"}
	}

	fieldErrors := make(FieldErrors, len(validationErrs))
	for _, e := range validationErrs {
		if _, exists := fieldErrors[e.Field()]; exists {
			continue
		}
		fieldErrors[e.Field()] = v.friendlyMessage(e)
	}
	return fieldErrors
}

func (v *Validator) validateCatalog(fl validator.FieldLevel) bool {
	kind := domain.TemplateKind(fl.Param())
	if !kind.Valid() {
		return false
	}
	return v.catalog.Contains(kind, fl.Field().String())
}

// validatePhotoSlots enforces the two-way dependency between an image and its
// caption. The error lands on the field the user still has to fill in.
func (v *Validator) validatePhotoSlots(sl validator.StructLevel) {
	form := sl.Current().Interface().(LegacyForm)
	slots := []struct {
		index   string
		image   domain.ImageSource
		caption string
	}{
		{index: "1", image: form.Image1, caption: form.Caption1},
		{index: "2", image: form.Image2, caption: form.Caption2},
	}
	for _, slot := range slots {
		imageField := "image" + slot.index
		captionField := "caption" + slot.index
		hasImage := domain.HasImage(slot.image)
		hasCaption := strings.TrimSpace(slot.caption) != ""

		switch {
		case hasImage && !hasCaption:
			sl.ReportError(slot.caption, captionField, "Caption"+slot.index, tagCaptionRequired, slot.index)
		case hasCaption && !hasImage:
			sl.ReportError(slot.image, imageField, "Image"+slot.index, tagImageRequired, slot.index)
		}
		if hasImage && !v.imageAcceptable(slot.image) {
			sl.ReportError(slot.image, imageField, "Image"+slot.index, tagImageType, slot.index)
		}
	}
}

func (v *Validator) imageAcceptable(src domain.ImageSource) bool {
	switch img := src.(type) {
	case domain.TemplateRef:
		return v.catalog.Contains(img.Kind, img.ID)
	case *domain.TemplateRef:
		return v.catalog.Contains(img.Kind, img.ID)
	case domain.UploadedAsset:
		return AcceptedImage(img.Data)
	case *domain.UploadedAsset:
		return AcceptedImage(img.Data)
	}
	return false
}

// AcceptedImage sniffs data and reports whether it is a supported photo format.
func AcceptedImage(data []byte) bool {
	_, ok := acceptedImageTypes[http.DetectContentType(data)]
	return ok
}

func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		if msg, ok := requiredMessages[e.Field()]; ok {
			return msg
		}
		return label(e.Field()) + " is required"
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", label(e.Field()), e.Param())
	case tagCatalog:
		if msg, ok := catalogMessages[domain.TemplateKind(e.Param())]; ok {
			return msg
		}
		return "Please select a template"
	case tagCaptionRequired:
		return fmt.Sprintf("You forgot to write a caption for your %s image!", ordinals[e.Param()])
	case tagImageRequired:
		return fmt.Sprintf("You wrote a caption for your %s image but forgot to upload the image!", ordinals[e.Param()])
	case tagImageType:
		return "File type not supported. Please upload PNG, JPG or WebP only."
	default:
		return label(e.Field()) + " is invalid"
	}
}

func label(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return field
}
