package cost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const PricingFile = "pricing.yaml"

// LocalPricing holds user-entered prices, keyed by model then size ("" for
// any size).
type LocalPricing struct {
	UpdatedAt time.Time                     `yaml:"updated_at"`
	Source    string                        `yaml:"source"`
	Image     map[string]map[string]float64 `yaml:"image"`
}

// Lookup is safe on a nil receiver.
func (p *LocalPricing) Lookup(model, size string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	sizes, ok := p.Image[model]
	if !ok {
		return 0, false
	}
	if price, ok := sizes[size]; ok {
		return price, true
	}
	price, ok := sizes[""]
	return price, ok
}

// LoadPricing reads dir/pricing.yaml. A missing file yields nil, nil.
func LoadPricing(dir string) (*LocalPricing, error) {
	data, err := os.ReadFile(filepath.Join(dir, PricingFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pricing overrides: %w", err)
	}

	var pricing LocalPricing
	if err := yaml.Unmarshal(data, &pricing); err != nil {
		return nil, fmt.Errorf("failed to parse pricing overrides: %w", err)
	}
	return &pricing, nil
}

func SavePricing(dir string, pricing *LocalPricing) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := yaml.Marshal(pricing)
	if err != nil {
		return fmt.Errorf("failed to marshal pricing: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, PricingFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write pricing overrides: %w", err)
	}
	return nil
}

// SetPrice records a manual price for model (and optionally size).
func SetPrice(dir, model, size string, price float64) error {
	if model == "" {
		return errors.New("model is required")
	}
	if price < 0 {
		return fmt.Errorf("price cannot be negative: %v", price)
	}

	pricing, err := LoadPricing(dir)
	if err != nil {
		return err
	}
	if pricing == nil {
		pricing = &LocalPricing{}
	}
	if pricing.Image == nil {
		pricing.Image = make(map[string]map[string]float64)
	}
	if pricing.Image[model] == nil {
		pricing.Image[model] = make(map[string]float64)
	}

	pricing.Image[model][size] = price
	pricing.UpdatedAt = time.Now()
	pricing.Source = "manual"

	return SavePricing(dir, pricing)
}

func DeletePricing(dir string) error {
	if err := os.Remove(filepath.Join(dir, PricingFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete pricing overrides: %w", err)
	}
	return nil
}
