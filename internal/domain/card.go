package domain

import (
	"strings"
	"time"
)

// TemplateKind enumerates the asset families a card is assembled from.
type TemplateKind string

const (
	// KindCard is the illustrated card face that carries the message.
	KindCard TemplateKind = "card"
	// KindCover is the envelope artwork shown before opening.
	KindCover TemplateKind = "cover"
	// KindStamp is the postage stamp overlaid on the envelope.
	KindStamp TemplateKind = "stamp"
)

// TemplateKinds lists every kind in display order.
var TemplateKinds = []TemplateKind{KindCard, KindCover, KindStamp}

// Valid reports whether k is a known kind.
func (k TemplateKind) Valid() bool {
	switch k {
	case KindCard, KindCover, KindStamp:
		return true
	}
	return false
}

// CardRecord is the persisted greeting card. It is written once by the form
// and only read afterwards, except for the legacy photo patch.
type CardRecord struct {
	ID                      string
	SenderName              string
	RecipientName           string
	Message                 string
	SelectedStamp           string
	SelectedCardTemplateID  string
	SelectedCoverTemplateID string
	Photos                  []Photo
	CreatedAt               time.Time
}

// Photo is an image attached through the legacy photo form.
type Photo struct {
	Slot        int
	URL         string
	Caption     string
	ContentType string
	Width       int
	Height      int
	BlurHash    string
}

// TextAlign controls horizontal alignment of the message inside its placement box.
type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

// Placement is the message box on a card illustration. Coordinates are
// percentages of the rendered image so layout is resolution independent.
type Placement struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
	Align  TextAlign
	Color  string
}

// Asset is a resolved catalog entry.
type Asset struct {
	Kind     TemplateKind
	ID       string
	Name     string
	ImageURL string
	Alt      string
	Default  bool
}

// ImageSource is either a catalog reference or freshly uploaded bytes. Both
// resolve to a URL before a card is stored.
type ImageSource interface {
	imageSource()
}

// TemplateRef points at an image that already ships with the catalog.
type TemplateRef struct {
	Kind TemplateKind
	ID   string
}

// UploadedAsset carries raw bytes received from the client.
type UploadedAsset struct {
	Filename string
	MIMEType string
	Data     []byte
}

func (TemplateRef) imageSource()   {}
func (UploadedAsset) imageSource() {}

// Empty reports whether the upload carries no content.
func (u UploadedAsset) Empty() bool {
	return len(u.Data) == 0
}

// Empty reports whether the reference names nothing.
func (r TemplateRef) Empty() bool {
	return strings.TrimSpace(r.ID) == ""
}

// HasImage reports whether src is a non-empty image source.
func HasImage(src ImageSource) bool {
	switch v := src.(type) {
	case TemplateRef:
		return !v.Empty()
	case *TemplateRef:
		return v != nil && !v.Empty()
	case UploadedAsset:
		return !v.Empty()
	case *UploadedAsset:
		return v != nil && !v.Empty()
	}
	return false
}
