package openai

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/pkg/models"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second
)

type apiResponse struct {
	Created      int64       `json:"created"`
	Data         []imageData `json:"data"`
	OutputFormat string      `json:"output_format,omitempty"`
	Error        *apiError   `json:"error,omitempty"`
}

type imageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Provider edits images through the OpenAI Images API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	registry   *models.ModelRegistry
	verbose    bool
}

func New(cfg *provider.Config, registry *models.ModelRegistry) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		registry: registry,
		verbose:  cfg.Verbose,
	}, nil
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderOpenAI
}

func (p *Provider) SupportsModel(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.Provider == models.ProviderOpenAI
}

func (p *Provider) ListModels() []string {
	return p.registry.ListByProvider(models.ProviderOpenAI)
}

// buildResponse decodes inline payloads. URL-only images are left for the
// caller to download.
func (p *Provider) buildResponse(apiResp apiResponse) (*models.Response, error) {
	response := &models.Response{
		Images: make([]models.GeneratedImage, 0, len(apiResp.Data)),
	}

	var mediaType models.MediaType
	if apiResp.OutputFormat != "" {
		if f, err := models.ParseOutputFormat(apiResp.OutputFormat); err == nil {
			mediaType = f.MediaType()
		}
	}

	for i, data := range apiResp.Data {
		img := models.GeneratedImage{
			Index:     i,
			URL:       data.URL,
			MediaType: mediaType,
		}

		if data.B64JSON != "" {
			decoded, err := base64.StdEncoding.DecodeString(data.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("failed to decode image %d: %w", i, err)
			}
			img.Data = decoded
		}

		if i == 0 && data.RevisedPrompt != "" {
			response.RevisedPrompt = data.RevisedPrompt
			response.Text = data.RevisedPrompt
		}

		response.Images = append(response.Images, img)
	}

	return response, nil
}
