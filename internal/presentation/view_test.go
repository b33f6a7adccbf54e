package presentation

import (
	"testing"
	"time"

	"github.com/hanko-field/greetings/internal/catalog"
	"github.com/hanko-field/greetings/internal/domain"
)

func TestBuildViewResolvesTemplates(t *testing.T) {
	record := domain.CardRecord{
		ID:                      "card-1",
		SenderName:              "Alex",
		RecipientName:           "Sam",
		Message:                 "Happy Holidays!",
		SelectedStamp:           "treeStamp",
		SelectedCardTemplateID:  "snowman-card",
		SelectedCoverTemplateID: "snowman-cover",
	}

	view := BuildView(record, catalog.Default())

	if view.To != "Sam" || view.From != "Alex" || view.Message != "Happy Holidays!" {
		t.Fatalf("unexpected text fields %+v", view)
	}
	if view.Card.ID != "snowman-card" || view.Cover.ID != "snowman-cover" || view.Stamp.ID != "treeStamp" {
		t.Fatalf("unexpected assets card=%s cover=%s stamp=%s", view.Card.ID, view.Cover.ID, view.Stamp.ID)
	}
	if view.Placement.Color != "#1b2a3a" {
		t.Fatalf("expected snowman placement, got %+v", view.Placement)
	}
	if view.MessageStyle != "left:10%;top:10%;width:50%;height:66%;text-align:left;color:#1b2a3a" {
		t.Fatalf("unexpected style %q", view.MessageStyle)
	}
	if view.Stage != StageClosed || view.MessageOpen {
		t.Fatalf("expected closed envelope by default")
	}
	if view.CompactNames {
		t.Fatalf("short names must not be compact")
	}
	if view.FaceText() != "Happy Holidays!" {
		t.Fatalf("expected the message on the card face, got %q", view.FaceText())
	}
}

func TestBuildViewFallsBackForUnknownIDs(t *testing.T) {
	record := domain.CardRecord{
		ID:                      "card-2",
		SelectedStamp:           "stamp3",
		SelectedCardTemplateID:  "heart-card",
		SelectedCoverTemplateID: "",
	}

	view := BuildView(record, catalog.Default())

	if view.Card.ID != "cat-card" || view.Cover.ID != "cat-cover" || view.Stamp.ID != "catStamp" {
		t.Fatalf("expected defaults, got card=%s cover=%s stamp=%s", view.Card.ID, view.Cover.ID, view.Stamp.ID)
	}
	if view.Placement.X != 56 {
		t.Fatalf("expected default card placement, got %+v", view.Placement)
	}
	if view.To != "—" || view.From != "—" || view.Message != "—" {
		t.Fatalf("expected placeholders for empty text, got %+v", view)
	}
	if view.HasMessage {
		t.Fatalf("empty message must not count as present")
	}
	if view.FaceText() != "Click to read your message ✨" {
		t.Fatalf("expected label on the card face for an empty message, got %q", view.FaceText())
	}
	if view.MessageLabel != "Click to read your message ✨" || view.ModalTitle != "Happy Holidays!" {
		t.Fatalf("unexpected labels %q / %q", view.MessageLabel, view.ModalTitle)
	}
}

func TestBuildViewCompactNamesAndPhotos(t *testing.T) {
	record := domain.CardRecord{
		SenderName:    "Alexandra-Maria Lopez",
		RecipientName: "Sam",
		Photos: []domain.Photo{
			{Slot: 1, URL: "https://example.com/1.jpg", Caption: "Snow day", BlurHash: "LEHV6nWB2yk8"},
			{Slot: 2, URL: " "},
		},
	}
	view := BuildView(record, catalog.Default())
	if !view.CompactNames {
		t.Fatalf("expected long sender name to switch to compact layout")
	}
	if len(view.Photos) != 1 || view.Photos[0].Caption != "Snow day" {
		t.Fatalf("unexpected photos %+v", view.Photos)
	}
}

func TestViewWithSessionCopiesState(t *testing.T) {
	sched := &fakeScheduler{}
	store := NewSessions(WithEnvelopeOptions(WithScheduler(sched), WithOpenDelay(900*time.Millisecond)))
	session := store.Start("card-1")
	session.Envelope.Activate()
	session.Envelope.OpenMessage()

	view := BuildView(domain.CardRecord{ID: "card-1"}, catalog.Default()).WithSession(session)
	if view.SessionID != session.ID || view.Stage != StageOpening || !view.MessageOpen {
		t.Fatalf("unexpected view state %+v", view)
	}
	if view.OpenDelayMS != 900 {
		t.Fatalf("expected configured delay, got %d", view.OpenDelayMS)
	}
}

func TestPlacementStyleFormatsFractions(t *testing.T) {
	got := PlacementStyle(domain.Placement{X: 12.5, Y: 0, Width: 40.25, Height: 100, Color: "#fff"})
	if got != "left:12.5%;top:0%;width:40.25%;height:100%;text-align:left;color:#fff" {
		t.Fatalf("unexpected style %q", got)
	}
}
