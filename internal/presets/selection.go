package presets

import (
	"errors"
	"fmt"
	"strings"
)

var ErrAmbiguousSelection = errors.New("set exactly one of instruction, preset, blur, texture or text")

// Selection is one way of asking for an edit: a free-form instruction, a
// catalog preset, a slider level or an overlay text.
type Selection struct {
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	Preset      string `json:"preset,omitempty" yaml:"preset,omitempty"`
	Blur        *int   `json:"blur,omitempty" yaml:"blur,omitempty"`
	Texture     *int   `json:"texture,omitempty" yaml:"texture,omitempty"`
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
}

// Validate checks that exactly one field is set.
func (s Selection) Validate() error {
	set := 0
	for _, ok := range []bool{
		strings.TrimSpace(s.Instruction) != "",
		strings.TrimSpace(s.Preset) != "",
		s.Blur != nil,
		s.Texture != nil,
		strings.TrimSpace(s.Text) != "",
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return ErrAmbiguousSelection
	}
	return nil
}

// Label is a short human description.
func (s Selection) Label() string {
	switch {
	case s.Preset != "":
		return "preset " + s.Preset
	case s.Blur != nil:
		return fmt.Sprintf("blur %d", *s.Blur)
	case s.Texture != nil:
		return fmt.Sprintf("texture %d", *s.Texture)
	case s.Text != "":
		return fmt.Sprintf("text %q", s.Text)
	default:
		return s.Instruction
	}
}

// Resolve builds the instruction sent to the model.
func (s Selection) Resolve(c *Catalog) (string, error) {
	switch {
	case strings.TrimSpace(s.Preset) != "":
		p, err := c.Find(s.Preset)
		if err != nil {
			return "", err
		}
		return p.Instruction, nil
	case s.Blur != nil:
		return BlurInstruction(*s.Blur), nil
	case s.Texture != nil:
		return TextureInstruction(*s.Texture), nil
	case strings.TrimSpace(s.Text) != "":
		return TextOverlayInstruction(s.Text)
	default:
		return strings.TrimSpace(s.Instruction), nil
	}
}
