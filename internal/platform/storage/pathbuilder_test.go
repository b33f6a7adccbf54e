package storage

import (
	"testing"
	"time"
)

func TestBuildCardPhotoPath(t *testing.T) {
	at := time.UnixMilli(1734998400123)
	path, err := BuildObjectPath(PurposeCardPhoto, PathParams{
		CardID:     "abc123",
		Slot:       2,
		UploadedAt: at,
		Ext:        ".JPG",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "cards/abc123/image2-1734998400123.jpg"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidParams(t *testing.T) {
	valid := PathParams{CardID: "abc", Slot: 1, UploadedAt: time.Now(), Ext: "jpg"}
	cases := map[string]func(*PathParams){
		"traversal":    func(p *PathParams) { p.CardID = "../bad" },
		"slash":        func(p *PathParams) { p.CardID = "a/b" },
		"missing id":   func(p *PathParams) { p.CardID = " " },
		"zero slot":    func(p *PathParams) { p.Slot = 0 },
		"missing time": func(p *PathParams) { p.UploadedAt = time.Time{} },
		"missing ext":  func(p *PathParams) { p.Ext = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			params := valid
			mutate(&params)
			if _, err := BuildObjectPath(PurposeCardPhoto, params); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBuildObjectPathUnknownPurpose(t *testing.T) {
	if _, err := BuildObjectPath("receipt", PathParams{}); err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}
