package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/manash/imgstudio/internal/cost"
	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/pkg/models"
)

const DefaultTimeout = 120 * time.Second

// ErrEmptyInstruction is returned before any remote call is made.
var ErrEmptyInstruction = models.ErrEmptyPrompt

// GenerationError is the single failure kind of a generation: the remote call
// failed, timed out, or returned no usable image.
type GenerationError struct {
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func generationError(msg string, err error) *GenerationError {
	return &GenerationError{Message: msg, Err: err}
}

// Result is a successful generation.
type Result struct {
	Version  models.ImageVersion
	Provider models.ProviderType
	Model    string
	Text     string
	Cost     float64
	Duration time.Duration
}

type GatewayConfig struct {
	Model      string
	Timeout    time.Duration
	Calculator *cost.Calculator
	Saver      *image.Saver
}

// Gateway sends one base image plus instruction to a provider and validates
// what comes back. It keeps no state between calls.
type Gateway struct {
	provider   Provider
	caps       *models.ModelCapabilities
	timeout    time.Duration
	calculator *cost.Calculator
	saver      *image.Saver
}

func NewGateway(p Provider, registry *models.ModelRegistry, cfg GatewayConfig) (*Gateway, error) {
	model := cfg.Model
	if model == "" {
		model = models.DefaultModel(p.Name())
	}

	caps, ok := registry.Get(model)
	if !ok || !p.SupportsModel(model) {
		return nil, fmt.Errorf("%w: %s does not serve %s", ErrModelNotSupported, p.Name(), model)
	}
	if !p.SupportsEdit(model) {
		return nil, fmt.Errorf("%w: %s", ErrEditNotSupported, model)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	calc := cfg.Calculator
	if calc == nil {
		calc = cost.NewCalculator()
	}
	saver := cfg.Saver
	if saver == nil {
		saver = image.NewSaver()
	}

	return &Gateway{
		provider:   p,
		caps:       caps,
		timeout:    timeout,
		calculator: calc,
		saver:      saver,
	}, nil
}

func (g *Gateway) Provider() models.ProviderType {
	return g.provider.Name()
}

func (g *Gateway) Model() string {
	return g.caps.Name
}

// Generate asks the provider to transform base according to instruction.
// Every failure after input validation is a *GenerationError.
func (g *Gateway) Generate(ctx context.Context, base models.ImageVersion, instruction string) (*Result, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, ErrEmptyInstruction
	}
	if base.Len() == 0 {
		return nil, models.ErrNoImageData
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := models.NewEditRequest(base, instruction)
	g.caps.ApplyDefaults(req)
	if err := g.caps.Validate(req); err != nil {
		return nil, generationError("request rejected for "+g.caps.Name, err)
	}

	start := time.Now()
	resp, err := g.provider.Edit(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, generationError(fmt.Sprintf("generation timed out after %s", g.timeout), err)
		}
		return nil, generationError("generation failed", err)
	}

	version, err := g.extract(ctx, resp)
	if err != nil {
		return nil, err
	}

	price := g.calculator.Calculate(g.provider.Name(), req.Model, req.Size, 1)

	log.Debug().
		Str("provider", string(g.provider.Name())).
		Str("model", req.Model).
		Dur("elapsed", elapsed).
		Int("bytes", version.Len()).
		Str("media_type", version.MediaType().String()).
		Msg("generation complete")

	return &Result{
		Version:  version,
		Provider: g.provider.Name(),
		Model:    req.Model,
		Text:     resp.Text,
		Cost:     price.Total,
		Duration: elapsed,
	}, nil
}

// extract turns the first returned image into a validated version.
func (g *Gateway) extract(ctx context.Context, resp *models.Response) (models.ImageVersion, error) {
	if resp == nil {
		return models.ImageVersion{}, generationError("model returned no image", nil)
	}
	if len(resp.Images) == 0 {
		msg := "model returned no image"
		if text := strings.TrimSpace(resp.Text); text != "" {
			msg += ": " + truncate(text, 200)
		}
		return models.ImageVersion{}, generationError(msg, nil)
	}

	img := resp.Images[0]
	data, err := g.saver.Fetch(ctx, &img)
	if err != nil {
		return models.ImageVersion{}, generationError("could not retrieve generated image", err)
	}
	if len(data) == 0 {
		return models.ImageVersion{}, generationError("model returned an empty image", nil)
	}

	mt := image.ResolveMediaType(string(img.MediaType), data)
	if !mt.IsAccepted() {
		return models.ImageVersion{}, generationError(fmt.Sprintf("model returned unsupported media type %q", mt), nil)
	}

	if _, err := image.Probe(data, mt); err != nil {
		return models.ImageVersion{}, generationError("model returned an unreadable image", err)
	}

	return models.NewImageVersion(data, mt), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
