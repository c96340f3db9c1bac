package presets

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultInstruction pre-fills the instruction box before the user types.
const DefaultInstruction = "Place the product on a dark, rustic wooden surface with a visible grain and a matte finish. Use soft, directional lighting to create a moody and luxurious atmosphere."

var (
	ErrPresetNotFound   = errors.New("preset not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrEmptyText        = errors.New("overlay text cannot be empty")
)

//go:embed presets.yaml
var catalogYAML []byte

type Preset struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Icon        string `yaml:"icon,omitempty" json:"icon,omitempty"`
	Swatch      string `yaml:"swatch,omitempty" json:"swatch,omitempty"`
	Instruction string `yaml:"instruction" json:"instruction"`
}

type Category struct {
	ID      string   `yaml:"id" json:"id"`
	Label   string   `yaml:"label" json:"label"`
	Presets []Preset `yaml:"presets" json:"presets"`
}

// Catalog is the ordered set of preset categories. Preset IDs are unique
// across the whole catalog.
type Catalog struct {
	Categories []Category `yaml:"categories" json:"categories"`
	byID       map[string]Preset
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the built-in catalog. It panics if the embedded document
// is invalid, which the package tests rule out.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(catalogYAML)
		if err != nil {
			panic(fmt.Sprintf("presets: invalid embedded catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Parse decodes a catalog document and indexes it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c.byID = make(map[string]Preset)
	for _, cat := range c.Categories {
		if cat.ID == "" {
			return nil, fmt.Errorf("category %q has no id", cat.Label)
		}
		for _, p := range cat.Presets {
			if p.ID == "" || strings.TrimSpace(p.Instruction) == "" {
				return nil, fmt.Errorf("category %s: preset %q needs an id and an instruction", cat.ID, p.Label)
			}
			if _, dup := c.byID[p.ID]; dup {
				return nil, fmt.Errorf("duplicate preset id %q", p.ID)
			}
			c.byID[p.ID] = p
		}
	}
	return &c, nil
}

func (c *Catalog) Find(id string) (Preset, error) {
	p, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, id)
	}
	return p, nil
}

func (c *Catalog) Category(id string) (Category, error) {
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat, nil
		}
	}
	return Category{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
}

func (c *Catalog) Len() int {
	return len(c.byID)
}
