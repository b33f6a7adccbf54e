// Package catalog holds the compiled-in card, cover and stamp artwork and the
// per-card message placement table.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hanko-field/greetings/internal/domain"
)

//go:embed catalog.yaml
var builtin []byte

const (
	defaultAlign = domain.AlignLeft
	defaultColor = "#761603"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

type catalogFile struct {
	Cards  []entry `yaml:"cards"`
	Covers []entry `yaml:"covers"`
	Stamps []entry `yaml:"stamps"`
}

type entry struct {
	ID        string          `yaml:"id"`
	Name      string          `yaml:"name"`
	Image     string          `yaml:"image"`
	Alt       string          `yaml:"alt"`
	Default   bool            `yaml:"default"`
	Placement *placementEntry `yaml:"placement"`
}

type placementEntry struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Align  string  `yaml:"align"`
	Color  string  `yaml:"color"`
}

type kindTable struct {
	order    []string
	assets   map[string]domain.Asset
	fallback domain.Asset
}

// Registry resolves template identifiers to artwork and placements. It is
// immutable after construction and safe for concurrent use.
type Registry struct {
	kinds      map[domain.TemplateKind]*kindTable
	placements map[string]domain.Placement
}

// Default returns the registry built from the embedded catalog. It panics if
// the embedded file is malformed, which a unit test guards against.
func Default() *Registry {
	reg, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog invalid: %v", err))
	}
	return reg
}

// Parse builds a Registry from YAML and checks that every kind has exactly one
// default, ids are unique, and placements stay inside the image box.
func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	reg := &Registry{
		kinds:      make(map[domain.TemplateKind]*kindTable, len(domain.TemplateKinds)),
		placements: make(map[string]domain.Placement, len(file.Cards)),
	}

	var errs []error
	sources := map[domain.TemplateKind][]entry{
		domain.KindCard:  file.Cards,
		domain.KindCover: file.Covers,
		domain.KindStamp: file.Stamps,
	}
	for _, kind := range domain.TemplateKinds {
		table, err := buildTable(kind, sources[kind])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reg.kinds[kind] = table
	}

	for _, e := range file.Cards {
		if e.Placement == nil {
			errs = append(errs, fmt.Errorf("catalog: card %q has no placement", e.ID))
			continue
		}
		placement, err := e.Placement.resolve()
		if err != nil {
			errs = append(errs, fmt.Errorf("catalog: card %q: %w", e.ID, err))
			continue
		}
		reg.placements[strings.TrimSpace(e.ID)] = placement
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return reg, nil
}

func buildTable(kind domain.TemplateKind, entries []entry) (*kindTable, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog: no %s entries", kind)
	}
	table := &kindTable{assets: make(map[string]domain.Asset, len(entries))}
	defaults := 0
	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog: %s entry without id", kind)
		}
		if _, dup := table.assets[id]; dup {
			return nil, fmt.Errorf("catalog: duplicate %s id %q", kind, id)
		}
		asset := domain.Asset{
			Kind:     kind,
			ID:       id,
			Name:     strings.TrimSpace(e.Name),
			ImageURL: strings.TrimSpace(e.Image),
			Alt:      strings.TrimSpace(e.Alt),
			Default:  e.Default,
		}
		if asset.Name == "" {
			asset.Name = id
		}
		table.assets[id] = asset
		table.order = append(table.order, id)
		if e.Default {
			defaults++
			table.fallback = asset
		}
	}
	if defaults != 1 {
		return nil, fmt.Errorf("catalog: %s needs exactly one default, found %d", kind, defaults)
	}
	return table, nil
}

func (p placementEntry) resolve() (domain.Placement, error) {
	for name, v := range map[string]float64{"x": p.X, "y": p.Y, "width": p.Width, "height": p.Height} {
		if v < 0 || v > 100 {
			return domain.Placement{}, fmt.Errorf("placement %s=%v outside 0-100", name, v)
		}
	}
	if p.X+p.Width > 100 || p.Y+p.Height > 100 {
		return domain.Placement{}, errors.New("placement overflows the image box")
	}
	if p.Width == 0 || p.Height == 0 {
		return domain.Placement{}, errors.New("placement has no area")
	}

	align := domain.TextAlign(strings.ToLower(strings.TrimSpace(p.Align)))
	switch align {
	case "":
		align = defaultAlign
	case domain.AlignLeft, domain.AlignCenter, domain.AlignRight:
	default:
		return domain.Placement{}, fmt.Errorf("unknown align %q", p.Align)
	}

	color := strings.TrimSpace(p.Color)
	if color == "" {
		color = defaultColor
	}
	if !hexColor.MatchString(color) {
		return domain.Placement{}, fmt.Errorf("invalid color %q", p.Color)
	}

	return domain.Placement{
		X:      p.X,
		Y:      p.Y,
		Width:  p.Width,
		Height: p.Height,
		Align:  align,
		Color:  color,
	}, nil
}

// Resolve returns the asset for id, or the kind's default when id is unknown
// or empty. An unknown kind resolves against the card table.
func (r *Registry) Resolve(kind domain.TemplateKind, id string) domain.Asset {
	table := r.table(kind)
	if asset, ok := table.assets[strings.TrimSpace(id)]; ok {
		return asset
	}
	return table.fallback
}

// Contains reports whether id is a known entry of kind.
func (r *Registry) Contains(kind domain.TemplateKind, id string) bool {
	if !kind.Valid() {
		return false
	}
	_, ok := r.kinds[kind].assets[strings.TrimSpace(id)]
	return ok
}

// Default returns the fallback asset for kind.
func (r *Registry) Default(kind domain.TemplateKind) domain.Asset {
	return r.table(kind).fallback
}

// List returns the assets of kind in catalog order.
func (r *Registry) List(kind domain.TemplateKind) []domain.Asset {
	table := r.table(kind)
	out := make([]domain.Asset, 0, len(table.order))
	for _, id := range table.order {
		out = append(out, table.assets[id])
	}
	return out
}

// PlacementFor returns the message box for a card template, falling back to
// the default card's box for unknown ids.
func (r *Registry) PlacementFor(cardTemplateID string) domain.Placement {
	if placement, ok := r.placements[strings.TrimSpace(cardTemplateID)]; ok {
		return placement
	}
	return r.placements[r.kinds[domain.KindCard].fallback.ID]
}

// Placements returns a copy of the placement table keyed by card id.
func (r *Registry) Placements() map[string]domain.Placement {
	out := make(map[string]domain.Placement, len(r.placements))
	for id, p := range r.placements {
		out[id] = p
	}
	return out
}

func (r *Registry) table(kind domain.TemplateKind) *kindTable {
	if table, ok := r.kinds[kind]; ok {
		return table
	}
	return r.kinds[domain.KindCard]
}
