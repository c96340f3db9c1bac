package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/pkg/models"
)

func (p *Provider) SupportsEdit(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.SupportsEdit && cap.Provider == models.ProviderOpenAI
}

func (p *Provider) Edit(ctx context.Context, req *models.EditRequest) (*models.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !p.SupportsEdit(req.Model) {
		return nil, fmt.Errorf("%w: %s", provider.ErrEditNotSupported, req.Model)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writeImagePart(writer, req); err != nil {
		return nil, err
	}

	fields := editFields(req)
	for _, key := range []string{"prompt", "model", "size", "n", "output_format", "response_format"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := p.baseURL + "/images/edits"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	fields["image"] = fmt.Sprintf("[%d bytes, %s]", len(req.Image), req.MediaType)
	provider.LogMultipartRequest(p.verbose, string(p.Name()), http.MethodPost, url, httpReq.Header, fields)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	provider.LogResponse(p.verbose, string(p.Name()), resp.StatusCode, resp.Header, bodyBytes)

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", provider.ErrEditFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", provider.ErrEditFailed, apiResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", provider.ErrEditFailed, resp.StatusCode)
	}

	return p.buildResponse(apiResp)
}

// writeImagePart declares the real media type so non-PNG sources are accepted.
func writeImagePart(writer *multipart.Writer, req *models.EditRequest) error {
	format, ok := req.MediaType.Format()
	if !ok {
		format = models.FormatPNG
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="image.%s"`, format.Extension()))
	header.Set("Content-Type", format.MediaType().String())

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

func editFields(req *models.EditRequest) map[string]string {
	fields := map[string]string{
		"prompt": req.Prompt,
		"model":  req.Model,
	}

	if req.Size != "" {
		fields["size"] = req.Size
	}
	if req.Count > 0 {
		fields["n"] = strconv.Itoa(req.Count)
	}

	switch req.Model {
	case "gpt-image-1":
		if req.Format != "" {
			fields["output_format"] = req.Format.String()
		}
	case "dall-e-2":
		fields["response_format"] = "url"
	}

	return fields
}
