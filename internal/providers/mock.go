package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"latexlens/internal/models"
)

// MockProvider returns deterministic output derived from the image payload.
// It is used for local runs without an API key.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Info() ProviderInfo {
	return ProviderInfo{Name: "mock", Model: "mock-vision-v1"}
}

func (m *MockProvider) ExtractText(ctx context.Context, req StageRequest) (string, error) {
	_ = ctx
	return `\int_0^1 x^2 \, dx = \frac{1}{3} % ` + digest(req.ImageBase64), nil
}

func (m *MockProvider) GenerateAnalysis(ctx context.Context, req StageRequest) (AnalysisResult, error) {
	_ = ctx
	title := "Mock formula"
	if strings.Contains(req.Prompt, "Simplified Chinese") {
		title = "示例公式"
	}
	a := emptyAnalysis()
	a.Summary = "Deterministic mock analysis."
	a.Variables = append(a.Variables, models.Variable{Symbol: "x", Description: "integration variable"})
	a.Terms = append(a.Terms, models.Term{Name: "definite integral", Description: "integral over [0, 1]"})
	return AnalysisResult{Title: title, Analysis: a}, nil
}

func (m *MockProvider) Verify(ctx context.Context, req StageRequest) (models.VerificationResult, error) {
	_ = ctx
	return models.VerificationResult{ConfidenceScore: 90, VerificationReport: "mock verification"}, nil
}

func (m *MockProvider) VerifyStructured(ctx context.Context, req StageRequest) (models.Verification, error) {
	_ = ctx
	return models.Verification{
		Status: models.VerificationOK,
		Issues: []models.VerificationIssue{},
		Coverage: &models.VerificationCoverage{
			SymbolsMatched: 4, SymbolsTotal: 4, TermsMatched: 1, TermsTotal: 1,
		},
	}, nil
}

func (m *MockProvider) GenerateRaw(ctx context.Context, prompt string) (string, error) {
	_ = ctx
	return "Mock response.", nil
}

func digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:4])
}
