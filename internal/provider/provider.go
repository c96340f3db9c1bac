package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/manash/imgstudio/pkg/models"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrModelNotSupported = errors.New("model not supported by provider")
	ErrAPIKeyRequired    = errors.New("API key is required")
	ErrEditFailed        = errors.New("image edit failed")
	ErrEditNotSupported  = errors.New("image editing not supported by model")
	ErrContentBlocked    = errors.New("request blocked by content policy")
)

// Provider is a remote image-editing service.
type Provider interface {
	Name() models.ProviderType
	Edit(ctx context.Context, req *models.EditRequest) (*models.Response, error)
	SupportsModel(model string) bool
	SupportsEdit(model string) bool
	ListModels() []string
}

type Config struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int
	Verbose    bool
}

// Constructor builds a provider from its connection settings.
type Constructor func(cfg *Config, registry *models.ModelRegistry) (Provider, error)

// Factory builds providers by name. Each provider is built at most once.
type Factory struct {
	registry     *models.ModelRegistry
	constructors map[models.ProviderType]Constructor
	built        map[models.ProviderType]Provider
}

func NewFactory(registry *models.ModelRegistry) *Factory {
	return &Factory{
		registry:     registry,
		constructors: make(map[models.ProviderType]Constructor),
		built:        make(map[models.ProviderType]Provider),
	}
}

func (f *Factory) Register(providerType models.ProviderType, c Constructor) {
	f.constructors[providerType] = c
	delete(f.built, providerType)
}

// Open returns the provider named providerType, building it from cfg on
// first use. Later calls return the same provider and ignore cfg.
func (f *Factory) Open(providerType models.ProviderType, cfg *Config) (Provider, error) {
	if p, ok := f.built[providerType]; ok {
		return p, nil
	}

	c, ok := f.constructors[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrProviderNotFound, providerType, f.Providers())
	}
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrAPIKeyRequired, providerType)
	}

	p, err := c(cfg, f.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}
	if p.Name() != providerType {
		return nil, fmt.Errorf("constructor for %s built a %s provider", providerType, p.Name())
	}

	f.built[providerType] = p
	return p, nil
}

// ProviderFor returns the registered provider that serves model.
func (f *Factory) ProviderFor(model string) (models.ProviderType, error) {
	caps, ok := f.registry.Get(model)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrModelNotSupported, model)
	}
	if _, ok := f.constructors[caps.Provider]; !ok {
		return "", fmt.Errorf("%w: %s (required by model %s)", ErrProviderNotFound, caps.Provider, model)
	}
	return caps.Provider, nil
}

// Providers lists the registered provider names in sorted order.
func (f *Factory) Providers() []models.ProviderType {
	types := make([]models.ProviderType, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (f *Factory) Registry() *models.ModelRegistry {
	return f.registry
}
