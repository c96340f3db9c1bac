package models

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	ErrEmptyPrompt           = errors.New("instruction cannot be empty")
	ErrInvalidCount          = errors.New("count must be at least 1")
	ErrCountExceedsMax       = errors.New("count exceeds maximum for model")
	ErrInvalidSize           = errors.New("invalid size for model")
	ErrEditNotSupported      = errors.New("image editing not supported by model")
	ErrNoImageData           = errors.New("image data is required for editing")
	ErrMediaTypeNotSupported = errors.New("input media type not supported by model")
	ErrInvalidFormat         = errors.New("invalid output format")
	ErrInvalidScale          = errors.New("invalid export scale")
)

type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOpenAI ProviderType = "openai"
)

func ValidProviders() []ProviderType {
	return []ProviderType{ProviderGemini, ProviderOpenAI}
}

func (p ProviderType) IsValid() bool {
	return slices.Contains(ValidProviders(), p)
}

type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
	FormatWebP OutputFormat = "webp"
)

func ValidFormats() []OutputFormat {
	return []OutputFormat{FormatPNG, FormatJPEG, FormatWebP}
}

// ParseOutputFormat accepts the format names plus the common "jpg" spelling.
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if f == "jpg" {
		f = FormatJPEG
	}
	if !f.IsValid() {
		return "", fmt.Errorf("%w %q: must be one of %v", ErrInvalidFormat, s, ValidFormats())
	}
	return f, nil
}

func (f OutputFormat) IsValid() bool {
	return slices.Contains(ValidFormats(), f)
}

func (f OutputFormat) String() string {
	return string(f)
}

func (f OutputFormat) Extension() string {
	return string(f)
}

func (f OutputFormat) MediaType() MediaType {
	switch f {
	case FormatJPEG:
		return MediaJPEG
	case FormatWebP:
		return MediaWebP
	default:
		return MediaPNG
	}
}

// ValidScales lists the export scale factors offered to the user.
func ValidScales() []float64 {
	return []float64{1.0, 0.75, 0.5}
}

func IsValidScale(scale float64) bool {
	return slices.Contains(ValidScales(), scale)
}

type EditRequest struct {
	Image     []byte
	MediaType MediaType
	Prompt    string
	Model     string
	Size      string
	Count     int
	Format    OutputFormat
}

func NewEditRequest(base ImageVersion, prompt string) *EditRequest {
	return &EditRequest{
		Image:     base.Bytes(),
		MediaType: base.MediaType(),
		Prompt:    prompt,
		Count:     1,
		Format:    FormatPNG,
	}
}

func (r *EditRequest) Validate() error {
	if len(r.Image) == 0 {
		return ErrNoImageData
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

type Response struct {
	Images        []GeneratedImage
	Text          string
	RevisedPrompt string
}

type GeneratedImage struct {
	Data      []byte
	URL       string
	MediaType MediaType
	Index     int
}

type ModelCapabilities struct {
	Name            string
	Provider        ProviderType
	SupportedSizes  []string
	DefaultSize     string
	MaxImages       int
	SupportsEdit    bool
	InputMediaTypes []MediaType
}

func (c *ModelCapabilities) Validate(req *EditRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if !c.SupportsEdit {
		return fmt.Errorf("%w: %s", ErrEditNotSupported, c.Name)
	}

	if req.Count < 1 {
		return ErrInvalidCount
	}

	if req.Count > c.MaxImages {
		return fmt.Errorf("%w: max %d, got %d", ErrCountExceedsMax, c.MaxImages, req.Count)
	}

	if req.Size != "" && len(c.SupportedSizes) > 0 && !slices.Contains(c.SupportedSizes, req.Size) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidSize, req.Size, c.SupportedSizes)
	}

	if len(c.InputMediaTypes) > 0 && !slices.Contains(c.InputMediaTypes, req.MediaType) {
		return fmt.Errorf("%w: %s accepts %v, got %q", ErrMediaTypeNotSupported, c.Name, c.InputMediaTypes, req.MediaType)
	}

	return nil
}

func (c *ModelCapabilities) ApplyDefaults(req *EditRequest) {
	if req.Size == "" {
		req.Size = c.DefaultSize
	}
	if req.Model == "" {
		req.Model = c.Name
	}
	if req.Count == 0 {
		req.Count = 1
	}
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ModelRegistry) ListByProvider(provider ProviderType) []string {
	var names []string
	for name, cap := range r.models {
		if cap.Provider == provider {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DefaultModel returns the model used when the configuration names none.
func DefaultModel(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-image-1"
	default:
		return "gemini-2.5-flash-image"
	}
}

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:            "gemini-2.5-flash-image",
		Provider:        ProviderGemini,
		MaxImages:       1,
		SupportsEdit:    true,
		InputMediaTypes: AcceptedMediaTypes(),
	})

	r.Register(&ModelCapabilities{
		Name:            "gemini-2.0-flash-preview-image-generation",
		Provider:        ProviderGemini,
		MaxImages:       1,
		SupportsEdit:    true,
		InputMediaTypes: AcceptedMediaTypes(),
	})

	r.Register(&ModelCapabilities{
		Name:            "gpt-image-1",
		Provider:        ProviderOpenAI,
		SupportedSizes:  []string{"1024x1024", "1536x1024", "1024x1536", "auto"},
		DefaultSize:     "auto",
		MaxImages:       10,
		SupportsEdit:    true,
		InputMediaTypes: AcceptedMediaTypes(),
	})

	r.Register(&ModelCapabilities{
		Name:            "dall-e-2",
		Provider:        ProviderOpenAI,
		SupportedSizes:  []string{"256x256", "512x512", "1024x1024"},
		DefaultSize:     "1024x1024",
		MaxImages:       10,
		SupportsEdit:    true,
		InputMediaTypes: []MediaType{MediaPNG},
	})

	return r
}
