package cost

// Edit pricing (USD per output image).
// Sources: https://openai.com/api/pricing/ and https://ai.google.dev/gemini-api/docs/pricing

type PricingKey struct {
	Model string
	Size  string
}

var editPricing = map[PricingKey]float64{
	// Gemini bills output images by token; one 1024px image is 1290 tokens at $30/1M.
	{Model: "gemini-2.5-flash-image"}:                    0.039,
	{Model: "gemini-2.0-flash-preview-image-generation"}: 0.039,

	// gpt-image-1 edits run at medium quality
	{Model: "gpt-image-1", Size: "1024x1024"}: 0.042,
	{Model: "gpt-image-1", Size: "1536x1024"}: 0.063,
	{Model: "gpt-image-1", Size: "1024x1536"}: 0.063,
	{Model: "gpt-image-1", Size: "auto"}:      0.042,

	{Model: "dall-e-2", Size: "256x256"}:   0.016,
	{Model: "dall-e-2", Size: "512x512"}:   0.018,
	{Model: "dall-e-2", Size: "1024x1024"}: 0.020,
}

// GetEditPrice looks up the built-in price, falling back to the model's
// size-independent entry.
func GetEditPrice(model, size string) (float64, bool) {
	if price, ok := editPricing[PricingKey{Model: model, Size: size}]; ok {
		return price, true
	}
	price, ok := editPricing[PricingKey{Model: model}]
	return price, ok
}
