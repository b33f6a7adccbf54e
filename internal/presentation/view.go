package presentation

import (
	"fmt"
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/hanko-field/greetings/internal/domain"
)

const (
	emptyPlaceholder   = "—"
	messageButtonLabel = "Click to read your message ✨"
	modalTitle         = "Happy Holidays!"
	compactNameRunes   = 15
)

// Resolver is the catalog lookup the view needs.
type Resolver interface {
	Resolve(kind domain.TemplateKind, id string) domain.Asset
	PlacementFor(cardTemplateID string) domain.Placement
}

// View is everything the card page renders for one record.
type View struct {
	CardID       string
	To           string
	From         string
	Message      string
	MessageLabel string
	ModalTitle   string
	CompactNames bool
	Card         domain.Asset
	Cover        domain.Asset
	Stamp        domain.Asset
	Placement    domain.Placement
	MessageStyle template.CSS
	Photos       []PhotoView
	HasMessage   bool
	OpenDelayMS  int64
	SessionID    string
	Stage        Stage
	MessageOpen  bool
}

// PhotoView is a legacy photo ready for display.
type PhotoView struct {
	URL      string
	Caption  string
	BlurHash string
	Width    int
	Height   int
}

// BuildView resolves the record against the catalog. Unknown template ids fall
// back to defaults so every stored record renders.
func BuildView(record domain.CardRecord, resolver Resolver) View {
	to := strings.TrimSpace(record.RecipientName)
	from := strings.TrimSpace(record.SenderName)
	message := strings.TrimSpace(record.Message)

	view := View{
		CardID:       record.ID,
		To:           orPlaceholder(to),
		From:         orPlaceholder(from),
		Message:      orPlaceholder(message),
		MessageLabel: messageButtonLabel,
		ModalTitle:   modalTitle,
		CompactNames: utf8.RuneCountInString(to) > compactNameRunes || utf8.RuneCountInString(from) > compactNameRunes,
		Card:         resolver.Resolve(domain.KindCard, record.SelectedCardTemplateID),
		Cover:        resolver.Resolve(domain.KindCover, record.SelectedCoverTemplateID),
		Stamp:        resolver.Resolve(domain.KindStamp, record.SelectedStamp),
		HasMessage:   message != "",
		OpenDelayMS:  DefaultOpenDelay.Milliseconds(),
		Stage:        StageClosed,
	}
	view.Placement = resolver.PlacementFor(view.Card.ID)
	view.MessageStyle = PlacementStyle(view.Placement)

	for _, photo := range record.Photos {
		if strings.TrimSpace(photo.URL) == "" {
			continue
		}
		view.Photos = append(view.Photos, PhotoView{
			URL:      photo.URL,
			Caption:  photo.Caption,
			BlurHash: photo.BlurHash,
			Width:    photo.Width,
			Height:   photo.Height,
		})
	}
	return view
}

// WithSession copies the live envelope state of session onto the view.
func (v View) WithSession(session *Session) View {
	if session == nil {
		return v
	}
	snap := session.Envelope.Snapshot()
	v.SessionID = session.ID
	v.Stage = snap.Stage
	v.MessageOpen = snap.MessageOpen
	v.OpenDelayMS = session.Envelope.Delay().Milliseconds()
	return v
}

// FaceText is what the card face shows inside the placement box: the message,
// or the reveal label when the message is empty.
func (v View) FaceText() string {
	if v.HasMessage {
		return v.Message
	}
	return v.MessageLabel
}

// PlacementStyle renders p as absolute positioning in percent.
func PlacementStyle(p domain.Placement) template.CSS {
	align := p.Align
	if align == "" {
		align = domain.AlignLeft
	}
	return template.CSS(fmt.Sprintf(
		"left:%s%%;top:%s%%;width:%s%%;height:%s%%;text-align:%s;color:%s",
		trimFloat(p.X), trimFloat(p.Y), trimFloat(p.Width), trimFloat(p.Height), align, p.Color,
	))
}

func trimFloat(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func orPlaceholder(value string) string {
	if value == "" {
		return emptyPlaceholder
	}
	return value
}
