package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// NewBackend selects the backend variant by name.
func NewBackend(name string, cfg Config, logger zerolog.Logger) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gemini":
		return NewGeminiProvider(cfg, logger), nil
	case "genai":
		return NewGenAIProvider(cfg, logger), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

// Ping issues a minimal raw generation to check credentials and reachability.
func Ping(ctx context.Context, b Backend) error {
	if _, err := b.GenerateRaw(ctx, "ping"); err != nil {
		return fmt.Errorf("ping %s: %w", b.Info().Name, err)
	}
	return nil
}
