package recognition

import (
	"context"
	"errors"
	"sync"

	"latexlens/internal/models"
	"latexlens/internal/providers"
)

// fakeBackend lets tests gate and fail each stage independently.
type fakeBackend struct {
	mu sync.Mutex

	extractGate  chan struct{}
	analysisDone chan struct{}

	extractErr    error
	analysisErr   error
	verifyErr     error
	structuredErr error

	analysis   providers.AnalysisResult
	structured models.Verification
	prompts    map[string]string
	calls      []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		analysis: providers.AnalysisResult{Title: "Quadratic", Analysis: models.Analysis{Summary: "roots"}},
		prompts:  map[string]string{},
	}
}

func (f *fakeBackend) record(stage, prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stage)
	f.prompts[stage] = prompt
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) Info() providers.ProviderInfo {
	return providers.ProviderInfo{Name: "fake", Model: "fake-model"}
}

func (f *fakeBackend) ExtractText(ctx context.Context, req providers.StageRequest) (string, error) {
	f.record("latex", req.Prompt)
	if f.extractGate != nil {
		<-f.extractGate
	}
	if f.extractErr != nil {
		return "", f.extractErr
	}
	return "x^2+1", nil
}

func (f *fakeBackend) GenerateAnalysis(ctx context.Context, req providers.StageRequest) (providers.AnalysisResult, error) {
	f.record("analysis", req.Prompt)
	if f.analysisDone != nil {
		defer close(f.analysisDone)
	}
	if f.analysisErr != nil {
		return providers.AnalysisResult{}, f.analysisErr
	}
	return f.analysis, nil
}

func (f *fakeBackend) Verify(ctx context.Context, req providers.StageRequest) (models.VerificationResult, error) {
	f.record("verify", req.Prompt+"|"+req.PriorText+"|"+req.ImageBase64)
	if f.verifyErr != nil {
		return models.VerificationResult{}, f.verifyErr
	}
	return models.VerificationResult{ConfidenceScore: 88, VerificationReport: "close match"}, nil
}

func (f *fakeBackend) VerifyStructured(ctx context.Context, req providers.StageRequest) (models.Verification, error) {
	f.record("structured", req.Prompt)
	if f.structuredErr != nil {
		return models.Verification{}, f.structuredErr
	}
	return f.structured, nil
}

func (f *fakeBackend) GenerateRaw(ctx context.Context, prompt string) (string, error) {
	f.record("raw", prompt)
	return "pong", nil
}

var errBackend = errors.New("api request failed with status 400: bad request")
