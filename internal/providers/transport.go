package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type Content struct {
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

func TextPart(text string) Part { return Part{Text: text} }

func PNGPart(b64 string) Part {
	return Part{InlineData: &InlineData{MIMEType: "image/png", Data: b64}}
}

// HTTPTransport posts a GenerateRequest to <base>/<model>:generateContent.
type HTTPTransport struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

func NewHTTPTransport(cfg Config, logger zerolog.Logger) *HTTPTransport {
	return &HTTPTransport{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger,
	}
}

// ModelsBase makes sure the base URL ends in a path containing "models",
// whatever API version segment the caller configured.
func ModelsBase(base string) string {
	b := strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.Contains(b, "/models"):
		return b
	case strings.Contains(b, "/v1beta"), strings.Contains(b, "/v1"):
		return b + "/models"
	default:
		return b + "/v1beta/models"
	}
}

func (t *HTTPTransport) endpoint() string {
	u := fmt.Sprintf("%s/%s:generateContent", ModelsBase(t.cfg.BaseURL), t.cfg.Model)
	if t.cfg.APIKey != "" {
		u += "?key=" + url.QueryEscape(t.cfg.APIKey)
	}
	return u
}

func maskURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

func describeParts(req GenerateRequest) []string {
	out := make([]string, 0)
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			if p.InlineData != nil {
				out = append(out, fmt.Sprintf("image(%d bytes)", len(p.InlineData.Data)))
				continue
			}
			out = append(out, fmt.Sprintf("text(%d chars)", len(p.Text)))
		}
	}
	return out
}

func (t *HTTPTransport) Send(ctx context.Context, req GenerateRequest) (string, error) {
	endpoint := t.endpoint()
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}
	t.log.Debug().
		Str("url", maskURL(endpoint)).
		Strs("parts", describeParts(req)).
		Int("max_output_tokens", req.GenerationConfig.MaxOutputTokens).
		Float32("temperature", req.GenerationConfig.Temperature).
		Msg("backend request")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", &CancellationError{Err: err}
		}
		return "", &TransportError{Op: "send request", Err: scrubKey(err, t.cfg.APIKey)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "read response", Err: scrubKey(err, t.cfg.APIKey)}
	}
	t.log.Debug().
		Str("url", maskURL(endpoint)).
		Int("status", resp.StatusCode).
		Int("len", len(body)).
		Msg("backend response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}

// scrubKey removes the API key from url.Error messages, which embed the full
// request URL.
func scrubKey(err error, key string) error {
	if key == "" {
		return err
	}
	msg := err.Error()
	masked := strings.ReplaceAll(strings.ReplaceAll(msg, url.QueryEscape(key), "***"), key, "***")
	if masked == msg {
		return err
	}
	return errors.New(masked)
}
