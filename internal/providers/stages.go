package providers

import (
	"context"

	"github.com/rs/zerolog"

	"latexlens/internal/models"
)

const (
	tempExtract  float32 = 0.2
	tempAnalysis float32 = 0.5
	tempVerify   float32 = 0.2
	tempRaw      float32 = 0.7
)

// textGenerator returns the candidate text for one request. Each variant
// applies its own retry handling.
type textGenerator interface {
	generate(ctx context.Context, stage string, temperature float32, parts []Part) (string, error)
}

// stageCalls implements the Backend stage methods over a textGenerator.
type stageCalls struct {
	gen textGenerator
	log zerolog.Logger
}

func imageParts(prompt, imageBase64 string) []Part {
	parts := []Part{TextPart(prompt)}
	if imageBase64 != "" {
		parts = append(parts, PNGPart(imageBase64))
	}
	return parts
}

func (s stageCalls) ExtractText(ctx context.Context, req StageRequest) (string, error) {
	text, err := s.gen.generate(ctx, stageExtraction, tempExtract, imageParts(req.Prompt, req.ImageBase64))
	if err != nil {
		return "", err
	}
	latex, err := ParseLatex(Clean(text))
	if err != nil {
		s.log.Warn().Err(err).Msg("extraction output did not match schema")
		return "", err
	}
	return latex, nil
}

func (s stageCalls) GenerateAnalysis(ctx context.Context, req StageRequest) (AnalysisResult, error) {
	text, err := s.gen.generate(ctx, stageAnalysis, tempAnalysis, imageParts(req.Prompt, req.ImageBase64))
	if err != nil {
		return AnalysisResult{}, err
	}
	return ParseAnalysis(Clean(text))
}

func (s stageCalls) Verify(ctx context.Context, req StageRequest) (models.VerificationResult, error) {
	prompt := req.Prompt + "\n\nLaTeX to evaluate: " + req.PriorText
	text, err := s.gen.generate(ctx, stageVerification, tempVerify, imageParts(prompt, req.ImageBase64))
	if err != nil {
		return models.VerificationResult{}, err
	}
	return ParseVerificationResult(Clean(text))
}

func (s stageCalls) VerifyStructured(ctx context.Context, req StageRequest) (models.Verification, error) {
	text, err := s.gen.generate(ctx, stageVerification, tempVerify, imageParts(req.Prompt, req.ImageBase64))
	if err != nil {
		return models.Verification{}, err
	}
	return ParseVerification(Clean(text))
}

func (s stageCalls) GenerateRaw(ctx context.Context, prompt string) (string, error) {
	return s.gen.generate(ctx, stageRaw, tempRaw, []Part{TextPart(prompt)})
}
