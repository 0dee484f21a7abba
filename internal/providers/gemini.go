package providers

import (
	"context"

	"github.com/rs/zerolog"
)

// GeminiProvider talks to the generateContent REST endpoint directly.
type GeminiProvider struct {
	stageCalls
	cfg Config
}

func NewGeminiProvider(cfg Config, logger zerolog.Logger) *GeminiProvider {
	log := logger.With().Str("provider", "gemini").Str("model", cfg.Model).Logger()
	sender := NewRetryingSender(NewHTTPTransport(cfg, log), NewRetryPolicy(cfg.MaxRetries, log))
	return newGeminiWithSender(cfg, sender, log)
}

func newGeminiWithSender(cfg Config, sender Sender, log zerolog.Logger) *GeminiProvider {
	return &GeminiProvider{
		stageCalls: stageCalls{gen: &senderGenerator{sender: sender, maxTokens: cfg.MaxOutputTokens}, log: log},
		cfg:        cfg,
	}
}

func (g *GeminiProvider) Info() ProviderInfo {
	return ProviderInfo{Name: "gemini", Model: g.cfg.Model}
}

type senderGenerator struct {
	sender    Sender
	maxTokens int
}

func (s *senderGenerator) generate(ctx context.Context, stage string, temperature float32, parts []Part) (string, error) {
	raw, err := s.sender.Send(ctx, GenerateRequest{
		Contents:         []Content{{Parts: parts}},
		GenerationConfig: GenerationConfig{Temperature: temperature, MaxOutputTokens: s.maxTokens},
	})
	if err != nil {
		return "", err
	}
	return CandidateText(stage, raw)
}
