package providers

import (
	"context"
	"time"

	"latexlens/internal/models"
)

// Config is the backend configuration shared by every provider variant.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxRetries      int
	MaxOutputTokens int
}

// StageRequest is the input of one backend stage call. PriorText carries the
// extraction output into verification.
type StageRequest struct {
	Prompt      string
	ImageBase64 string
	PriorText   string
}

type AnalysisResult struct {
	Title    string          `json:"title"`
	Analysis models.Analysis `json:"analysis"`
}

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Backend is the capability set the recognition pipeline needs from a
// generative image-to-text service.
type Backend interface {
	Info() ProviderInfo
	ExtractText(ctx context.Context, req StageRequest) (string, error)
	GenerateAnalysis(ctx context.Context, req StageRequest) (AnalysisResult, error)
	// Verify returns the score+report form. The image is optional.
	Verify(ctx context.Context, req StageRequest) (models.VerificationResult, error)
	// VerifyStructured compares PriorText with the image and returns issues
	// and coverage. Prompt carries the output-language hint.
	VerifyStructured(ctx context.Context, req StageRequest) (models.Verification, error)
	GenerateRaw(ctx context.Context, prompt string) (string, error)
}
