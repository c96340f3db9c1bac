package presets

import (
	"fmt"
	"strings"
)

const (
	MinLevel = 0
	MaxLevel = 100

	// DefaultLevel is where both sliders start.
	DefaultLevel = 10
)

func clamp(v int) int {
	return max(MinLevel, min(MaxLevel, v))
}

// BlurInstruction builds the background blur (bokeh) instruction for a
// slider level. Levels outside 0..100 are clamped.
func BlurInstruction(level int) string {
	level = clamp(level)
	switch {
	case level == 0:
		return "Remove any background blur (bokeh effect)."
	case level <= 25:
		return fmt.Sprintf("Add a very subtle background blur (light bokeh at %d%%) to slightly separate the subject.", level)
	case level <= 50:
		return fmt.Sprintf("Add a moderate background blur (medium bokeh at %d%%) for a professional look.", level)
	case level <= 75:
		return fmt.Sprintf("Increase the background blur significantly (strong bokeh at %d%%) to make the subject pop.", level)
	default:
		return fmt.Sprintf("Add an extreme and creamy background blur (very strong bokeh at %d%%), simulating a wide aperture lens for maximum subject isolation.", level)
	}
}

// TextureInstruction builds the texture enhancement instruction for a slider
// level. Levels outside 0..100 are clamped.
func TextureInstruction(level int) string {
	level = clamp(level)
	switch {
	case level == 0:
		return "Slightly soften the product details and textures for a smoother appearance."
	case level <= 25:
		return fmt.Sprintf("Subtly enhance the product's texture and micro-contrast details to make it look more refined. Apply an effect intensity of %d%%.", level)
	case level <= 50:
		return fmt.Sprintf("Enhance the product's texture details and sharpness for a more defined, professional look. Apply an effect intensity of %d%%.", level)
	case level <= 75:
		return fmt.Sprintf("Strongly enhance the texture details on the product, making its surfaces appear more tactile and refined. Apply an effect intensity of %d%%.", level)
	default:
		return fmt.Sprintf("Maximally enhance the texture and fine details on the product for an ultra-sharp, high-definition look, making the product appear extremely refined. Apply an effect intensity of %d%%.", level)
	}
}

// TextOverlayInstruction asks the model to render text on the image.
func TextOverlayInstruction(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	return fmt.Sprintf("Add the text \"%s\" to the image as an elegant overlay. Use a suitable font and color that complements the image. Apply a subtle drop shadow for readability. Place it in a visually pleasing location, like the bottom-left or bottom-right corner.", text), nil
}
