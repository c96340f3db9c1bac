package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/pkg/models"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 120 * time.Second
	apiKeyHeader   = "x-goog-api-key"
)

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type apiRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type apiResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
	Error          *apiError       `json:"error,omitempty"`
}

// Provider talks to the Gemini generateContent endpoint.
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
	return models.ProviderGemini
}

func (p *Provider) SupportsModel(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.Provider == models.ProviderGemini
}

func (p *Provider) SupportsEdit(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.SupportsEdit && cap.Provider == models.ProviderGemini
}

func (p *Provider) ListModels() []string {
	return p.registry.ListByProvider(models.ProviderGemini)
}

func (p *Provider) Edit(ctx context.Context, req *models.EditRequest) (*models.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !p.SupportsEdit(req.Model) {
		return nil, fmt.Errorf("%w: %s", provider.ErrEditNotSupported, req.Model)
	}

	jsonData, err := json.Marshal(buildAPIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, p.apiKey)

	provider.LogRequest(p.verbose, string(p.Name()), http.MethodPost, url, httpReq.Header, jsonData)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	provider.LogResponse(p.verbose, string(p.Name()), resp.StatusCode, resp.Header, body)

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", provider.ErrEditFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("%w: %s (%s)", provider.ErrEditFailed, apiResp.Error.Message, apiResp.Error.Status)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", provider.ErrEditFailed, resp.StatusCode)
	}

	return buildResponse(apiResp)
}

func buildAPIRequest(req *models.EditRequest) *apiRequest {
	return &apiRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{
					MimeType: req.MediaType.String(),
					Data:     base64.StdEncoding.EncodeToString(req.Image),
				}},
				{Text: req.Prompt},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}
}

// buildResponse collects every inline image and the concatenated text of the
// first candidate.
func buildResponse(apiResp apiResponse) (*models.Response, error) {
	if apiResp.PromptFeedback != nil && apiResp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", provider.ErrContentBlocked, apiResp.PromptFeedback.BlockReason)
	}

	if len(apiResp.Candidates) == 0 {
		return &models.Response{}, nil
	}

	cand := apiResp.Candidates[0]
	response := &models.Response{}
	var text []string

	for _, pt := range cand.Content.Parts {
		if pt.Text != "" {
			text = append(text, pt.Text)
		}
		if pt.InlineData == nil || pt.InlineData.Data == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(pt.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image %d: %w", len(response.Images), err)
		}
		response.Images = append(response.Images, models.GeneratedImage{
			Data:      decoded,
			MediaType: models.ParseMediaType(pt.InlineData.MimeType),
			Index:     len(response.Images),
		})
	}
	response.Text = strings.Join(text, "\n")

	if len(response.Images) == 0 && isFailureReason(cand.FinishReason) {
		return nil, fmt.Errorf("%w: finish reason %s", provider.ErrContentBlocked, cand.FinishReason)
	}

	return response, nil
}

func isFailureReason(reason string) bool {
	switch reason {
	case "", "STOP", "MAX_TOKENS", "FINISH_REASON_UNSPECIFIED":
		return false
	default:
		return true
	}
}
