package provider

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Keys whose values are base64 image payloads in provider JSON bodies.
var base64Keys = map[string]bool{
	"b64_json": true,
	"data":     true,
}

var secretHeaders = map[string]bool{
	"authorization":  true,
	"x-goog-api-key": true,
}

// LogRequest dumps an outgoing request at debug level when verbose is set.
// Secret headers are redacted and base64 payloads truncated.
func LogRequest(verbose bool, name, method, url string, headers http.Header, body []byte) {
	if !verbose {
		return
	}
	log.Debug().
		Str("provider", name).
		Str("method", method).
		Str("url", url).
		Interface("headers", redactHeaders(headers)).
		RawJSON("body", jsonOrString(TruncateBase64(body))).
		Msg("provider request")
}

// LogMultipartRequest is LogRequest for form uploads, where the body is
// summarized by field.
func LogMultipartRequest(verbose bool, name, method, url string, headers http.Header, fields map[string]string) {
	if !verbose {
		return
	}
	log.Debug().
		Str("provider", name).
		Str("method", method).
		Str("url", url).
		Interface("headers", redactHeaders(headers)).
		Interface("form", fields).
		Msg("provider request")
}

func LogResponse(verbose bool, name string, status int, headers http.Header, body []byte) {
	if !verbose {
		return
	}
	log.Debug().
		Str("provider", name).
		Int("status", status).
		Interface("headers", redactHeaders(headers)).
		RawJSON("body", jsonOrString(TruncateBase64(body))).
		Msg("provider response")
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		value := strings.Join(values, ", ")
		if secretHeaders[strings.ToLower(key)] {
			value = "[REDACTED]"
		}
		out[key] = value
	}
	return out
}

func jsonOrString(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// TruncateBase64 shortens long base64 fields in a JSON document for display.
// Non-JSON input is returned unchanged.
func TruncateBase64(body []byte) []byte {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	truncateBase64Fields(data)

	result, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return result
}

func truncateBase64Fields(value any) {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			if s, ok := item.(string); ok && base64Keys[key] && len(s) > 100 {
				v[key] = s[:100] + "... [truncated]"
				continue
			}
			truncateBase64Fields(item)
		}
	case []any:
		for _, item := range v {
			truncateBase64Fields(item)
		}
	}
}
