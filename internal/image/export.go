package image

import (
	"bytes"
	"errors"
	"fmt"
	goimage "image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"strings"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"

	"github.com/manash/imgstudio/pkg/models"
)

const (
	// JPEGQuality is the encoder quality used for JPEG exports.
	JPEGQuality = 92

	DefaultPrefix = "nano-studio"
)

var (
	ErrEmptyImage   = errors.New("image has no data")
	ErrDecode       = errors.New("failed to decode image")
	ErrTypeMismatch = errors.New("image content does not match declared media type")
	ErrTooSmall     = errors.New("scaled image has no pixels")
)

// formatNames maps image.Decode format names to media types.
var formatNames = map[string]models.MediaType{
	"png":  models.MediaPNG,
	"jpeg": models.MediaJPEG,
	"webp": models.MediaWebP,
}

// Probe checks that data decodes as an image of the declared type and returns
// its dimensions.
func Probe(data []byte, mediaType models.MediaType) (goimage.Config, error) {
	if len(data) == 0 {
		return goimage.Config{}, ErrEmptyImage
	}

	cfg, name, err := goimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return goimage.Config{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if got, ok := formatNames[name]; !ok || got != mediaType {
		return goimage.Config{}, fmt.Errorf("%w: declared %s, found %s", ErrTypeMismatch, mediaType, name)
	}

	if cfg.Width == 0 || cfg.Height == 0 {
		return goimage.Config{}, fmt.Errorf("%w: zero dimensions", ErrDecode)
	}

	return cfg, nil
}

// Decode decodes an image version into pixels.
func Decode(v models.ImageVersion) (goimage.Image, error) {
	if v.Len() == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := goimage.Decode(v.Reader())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Export re-encodes v in the requested format at the given scale. The source
// version is not modified.
func Export(v models.ImageVersion, format models.OutputFormat, scale float64) ([]byte, error) {
	if !format.IsValid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidFormat, format)
	}
	if !models.IsValidScale(scale) {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidScale, scale)
	}

	src, err := Decode(v)
	if err != nil {
		return nil, err
	}

	img, err := Scale(src, scale)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch format {
	case models.FormatJPEG:
		err = jpeg.Encode(&buf, Flatten(img, color.White), &jpeg.Options{Quality: JPEGQuality})
	case models.FormatWebP:
		err = nativewebp.Encode(&buf, img, nil)
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}

	return buf.Bytes(), nil
}

// Scale resamples img to floor(w*scale) x floor(h*scale) using Catmull-Rom.
// A scale of 1 returns img unchanged.
func Scale(img goimage.Image, scale float64) (goimage.Image, error) {
	if scale == 1 {
		return img, nil
	}

	b := img.Bounds()
	w := int(math.Floor(float64(b.Dx()) * scale))
	h := int(math.Floor(float64(b.Dy()) * scale))
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: %dx%d at %v", ErrTooSmall, b.Dx(), b.Dy(), scale)
	}

	dst := goimage.NewNRGBA(goimage.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

// Flatten composites img over an opaque background.
func Flatten(img goimage.Image, bg color.Color) goimage.Image {
	b := img.Bounds()
	dst := goimage.NewRGBA(goimage.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), goimage.NewUniform(bg), goimage.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// ExportFilename builds "<prefix>-YYYY-MM-DD.<ext>".
func ExportFilename(prefix string, t time.Time, format models.OutputFormat) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s-%s.%s", prefix, t.Format("2006-01-02"), format.Extension())
}
