package catalog

import (
	"strings"
	"testing"

	"github.com/hanko-field/greetings/internal/domain"
)

func TestDefaultCatalogLoads(t *testing.T) {
	reg := Default()

	wantDefaults := map[domain.TemplateKind]string{
		domain.KindCard:  "cat-card",
		domain.KindCover: "cat-cover",
		domain.KindStamp: "catStamp",
	}
	for kind, id := range wantDefaults {
		if got := reg.Default(kind).ID; got != id {
			t.Fatalf("default %s: expected %s, got %s", kind, id, got)
		}
	}
	if got := len(reg.List(domain.KindCard)); got != 3 {
		t.Fatalf("expected 3 cards, got %d", got)
	}
	if got := len(reg.List(domain.KindStamp)); got != 3 {
		t.Fatalf("expected 3 stamps, got %d", got)
	}
	if reg.List(domain.KindCover)[1].ID != "snowman-cover" {
		t.Fatalf("expected catalog order to be preserved")
	}
}

func TestResolveKnownAndUnknownIDs(t *testing.T) {
	reg := Default()

	cases := []struct {
		kind domain.TemplateKind
		id   string
		want string
	}{
		{domain.KindCard, "goose-card", "goose-card"},
		{domain.KindCard, "reindeer-card", "cat-card"},
		{domain.KindCard, "", "cat-card"},
		{domain.KindCover, "snowman-cover", "snowman-cover"},
		{domain.KindCover, "CAT-COVER", "cat-cover"},
		{domain.KindStamp, " treeStamp ", "treeStamp"},
		{domain.KindStamp, "stamp1", "catStamp"},
		{domain.TemplateKind("ribbon"), "goose-card", "goose-card"},
	}
	for _, tc := range cases {
		asset := reg.Resolve(tc.kind, tc.id)
		if asset.ID != tc.want {
			t.Fatalf("Resolve(%s, %q) = %s, want %s", tc.kind, tc.id, asset.ID, tc.want)
		}
		if asset.ImageURL == "" {
			t.Fatalf("Resolve(%s, %q) returned asset without image", tc.kind, tc.id)
		}
	}
}

func TestContains(t *testing.T) {
	reg := Default()
	if !reg.Contains(domain.KindStamp, "snowmanStamp") {
		t.Fatalf("expected snowmanStamp to be known")
	}
	if reg.Contains(domain.KindStamp, "snowman-card") {
		t.Fatalf("card id must not be accepted as stamp")
	}
	if reg.Contains(domain.TemplateKind("ribbon"), "cat-card") {
		t.Fatalf("unknown kind must not contain anything")
	}
}

func TestPlacementFor(t *testing.T) {
	reg := Default()

	cat := reg.PlacementFor("cat-card")
	if cat.X != 56 || cat.Y != 16 || cat.Width != 40 || cat.Height != 68 || cat.Color != "#ffffff" || cat.Align != domain.AlignLeft {
		t.Fatalf("unexpected cat placement %+v", cat)
	}

	snowman := reg.PlacementFor("snowman-card")
	if snowman.X != 10 || snowman.Color != "#1b2a3a" {
		t.Fatalf("unexpected snowman placement %+v", snowman)
	}

	goose := reg.PlacementFor("goose-card")
	if goose.Align != domain.AlignLeft || goose.Color != "#761603" {
		t.Fatalf("expected goose placement to use style defaults, got %+v", goose)
	}

	if got := reg.PlacementFor("does-not-exist"); got != cat {
		t.Fatalf("expected unknown id to fall back to default card placement, got %+v", got)
	}
}

func TestPlacementsReturnsCopy(t *testing.T) {
	reg := Default()
	placements := reg.Placements()
	delete(placements, "cat-card")
	if reg.PlacementFor("cat-card").X != 56 {
		t.Fatalf("mutating the copy must not affect the registry")
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	valid := `
cards:
  - {id: a, default: true, placement: {x: 1, y: 1, width: 10, height: 10}}
covers:
  - {id: c, default: true}
stamps:
  - {id: s, default: true}
`
	if _, err := Parse([]byte(valid)); err != nil {
		t.Fatalf("expected minimal catalog to parse: %v", err)
	}

	cases := map[string]string{
		"two defaults": strings.Replace(valid, "{id: c, default: true}", "{id: c, default: true}\n  - {id: d, default: true}", 1),
		"no default":   strings.Replace(valid, "{id: s, default: true}", "{id: s}", 1),
		"duplicate id": strings.Replace(valid, "{id: s, default: true}", "{id: s, default: true}\n  - {id: s}", 1),
		"overflow":     strings.Replace(valid, "width: 10", "width: 100", 1),
		"bad color":    strings.Replace(valid, "height: 10}", "height: 10, color: red}", 1),
		"bad align":    strings.Replace(valid, "height: 10}", "height: 10, align: justify}", 1),
		"no placement": strings.Replace(valid, ", placement: {x: 1, y: 1, width: 10, height: 10}", "", 1),
		"missing kind": strings.Replace(valid, "stamps:\n  - {id: s, default: true}\n", "", 1),
		"not yaml":     "cards: [",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
