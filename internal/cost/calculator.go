package cost

import "github.com/manash/imgstudio/pkg/models"

const (
	CurrencyUSD = "USD"
)

type Info struct {
	PerImage float64
	Total    float64
	Currency string
}

type Calculator struct {
	overrides *LocalPricing
}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// WithOverrides makes locally stored prices take precedence over the built-in table.
func (c *Calculator) WithOverrides(p *LocalPricing) *Calculator {
	c.overrides = p
	return c
}

func (c *Calculator) Calculate(provider models.ProviderType, model, size string, count int) *Info {
	if count < 0 {
		count = 0
	}

	var perImage float64
	if price, ok := c.overrides.Lookup(model, size); ok {
		perImage = price
	} else {
		switch provider {
		case models.ProviderOpenAI:
			perImage = c.calculateOpenAI(model, size)
		case models.ProviderGemini:
			perImage = c.calculateGemini(model)
		}
	}

	return &Info{
		PerImage: perImage,
		Total:    perImage * float64(count),
		Currency: CurrencyUSD,
	}
}

func (c *Calculator) calculateOpenAI(model, size string) float64 {
	if price, ok := GetEditPrice(model, size); ok {
		return price
	}

	// Default fallback prices
	switch model {
	case "gpt-image-1":
		return 0.042
	case "dall-e-2":
		return 0.020
	default:
		return 0
	}
}

func (c *Calculator) calculateGemini(model string) float64 {
	price, _ := GetEditPrice(model, "")
	return price
}
