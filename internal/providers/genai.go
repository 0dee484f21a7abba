package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GenAIProvider uses the Go generative AI SDK instead of raw REST calls.
// SDK errors are mapped onto the same HTTP-status texts the REST variant
// produces so retry classification behaves identically.
type GenAIProvider struct {
	stageCalls
	cfg Config
}

func NewGenAIProvider(cfg Config, logger zerolog.Logger) *GenAIProvider {
	log := logger.With().Str("provider", "genai").Str("model", cfg.Model).Logger()
	gen := &sdkGenerator{cfg: cfg, policy: NewRetryPolicy(cfg.MaxRetries, log), log: log}
	return &GenAIProvider{stageCalls: stageCalls{gen: gen, log: log}, cfg: cfg}
}

func (g *GenAIProvider) Info() ProviderInfo {
	return ProviderInfo{Name: "genai", Model: g.cfg.Model}
}

type sdkGenerator struct {
	cfg    Config
	policy RetryPolicy
	log    zerolog.Logger
}

func (s *sdkGenerator) generate(ctx context.Context, stage string, temperature float32, parts []Part) (string, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return "", errors.New("genai api key is empty")
	}
	sdkParts, err := toSDKParts(parts)
	if err != nil {
		return "", err
	}
	var out string
	err = s.policy.Do(ctx, func(ctx context.Context) error {
		text, err := s.once(ctx, stage, temperature, sdkParts)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}

func (s *sdkGenerator) once(ctx context.Context, stage string, temperature float32, parts []genai.Part) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(s.cfg.APIKey))
	if err != nil {
		return "", &TransportError{Op: "send request", Err: err}
	}
	defer cl.Close()

	m := cl.GenerativeModel(s.cfg.Model)
	m.SetTemperature(temperature)
	if s.cfg.MaxOutputTokens > 0 {
		m.SetMaxOutputTokens(int32(s.cfg.MaxOutputTokens))
	}
	s.log.Debug().Str("stage", stage).Int("parts", len(parts)).Float32("temperature", temperature).Msg("backend request")

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", mapSDKError(err)
	}
	if text, ok := sdkText(resp); ok {
		return text, nil
	}
	reason := "unknown"
	if resp != nil && len(resp.Candidates) > 0 {
		reason = resp.Candidates[0].FinishReason.String()
	}
	return "", &ParseError{Stage: stage, Err: fmt.Errorf("backend returned no text (finishReason: %s)", reason)}
}

func toSDKParts(parts []Part) ([]genai.Part, error) {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.InlineData != nil {
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline image: %w", err)
			}
			out = append(out, &genai.Blob{MIMEType: p.InlineData.MIMEType, Data: data})
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out, nil
}

func sdkText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return "", false
	}
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			return string(t), true
		}
	}
	return "", false
}

// mapSDKError rewrites gRPC status errors into the HTTP status form.
func mapSDKError(err error) error {
	if errors.Is(err, context.Canceled) {
		return &CancellationError{Err: err}
	}
	st, ok := status.FromError(err)
	if !ok {
		return &TransportError{Op: "send request", Err: err}
	}
	code := 0
	switch st.Code() {
	case codes.ResourceExhausted:
		code = 429
	case codes.Unavailable:
		code = 503
	case codes.DeadlineExceeded:
		code = 504
	case codes.Internal, codes.Unknown:
		code = 500
	case codes.Canceled:
		code = 499
	case codes.InvalidArgument, codes.FailedPrecondition:
		code = 400
	case codes.Unauthenticated:
		code = 401
	case codes.PermissionDenied:
		code = 403
	case codes.NotFound:
		code = 404
	default:
		code = 400
	}
	return &HTTPStatusError{Status: code, Body: st.Message()}
}
