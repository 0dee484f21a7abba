package recognition

import (
	"strings"

	"latexlens/internal/models"
	"latexlens/internal/prompts"
	"latexlens/internal/providers"
)

func DefaultTitle(language string) string {
	if prompts.IsChinese(language) {
		return "未命名公式"
	}
	return "Untitled formula"
}

func DefaultSummary(language string) string {
	if prompts.IsChinese(language) {
		return "分析暂不可用，请稍后重试。"
	}
	return "Analysis is temporarily unavailable. Please try again."
}

func VerificationFailedReport(language string) string {
	if prompts.IsChinese(language) {
		return "验证失败"
	}
	return "verification failed"
}

// DegradedAnalysis replaces a failed analysis stage.
func DegradedAnalysis(language string) providers.AnalysisResult {
	return providers.AnalysisResult{
		Title: DefaultTitle(language),
		Analysis: models.Analysis{
			Summary:     DefaultSummary(language),
			Variables:   []models.Variable{},
			Terms:       []models.Term{},
			Suggestions: []models.Suggestion{},
		},
	}
}

// DegradedVerification replaces a failed verification stage.
func DegradedVerification(language string) models.VerificationResult {
	return models.VerificationResult{ConfidenceScore: 0, VerificationReport: VerificationFailedReport(language)}
}

// FillEmptyAnalysis gives the default title to an analysis that came back
// entirely empty, which is how a wrong-stage answer is parsed. A real analysis
// keeps the model's title even when it is blank.
func FillEmptyAnalysis(res providers.AnalysisResult, language string) providers.AnalysisResult {
	a := res.Analysis
	empty := strings.TrimSpace(res.Title) == "" && strings.TrimSpace(a.Summary) == "" &&
		len(a.Variables) == 0 && len(a.Terms) == 0 && len(a.Suggestions) == 0
	if empty {
		res.Title = DefaultTitle(language)
	}
	return res
}
