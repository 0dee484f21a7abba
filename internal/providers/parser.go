package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"latexlens/internal/models"
)

const (
	stageExtraction   = "latex"
	stageAnalysis     = "analysis"
	stageVerification = "verification"
	stageRaw          = "raw"
)

type generateResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// CandidateText returns the first candidate's first text part.
func CandidateText(stage, raw string) (string, error) {
	var resp generateResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return "", &ParseError{Stage: stage, Text: raw, Err: fmt.Errorf("decode backend response: %w", err)}
	}
	reason := "unknown"
	if len(resp.Candidates) > 0 {
		c := resp.Candidates[0]
		if c.FinishReason != "" {
			reason = c.FinishReason
		}
		if c.Content != nil && len(c.Content.Parts) > 0 && c.Content.Parts[0].Text != nil {
			return *c.Content.Parts[0].Text, nil
		}
	}
	return "", &ParseError{Stage: stage, Text: raw, Err: fmt.Errorf("backend returned no text (finishReason: %s)", reason)}
}

// Clean strips Markdown code fences and surrounding whitespace.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

type validator interface {
	validate() error
}

// ParseStrict decodes cleaned text into T and checks the stage schema.
func ParseStrict[T any](stage, text string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return v, &ParseError{Stage: stage, Text: text, Err: err}
	}
	if c, ok := any(&v).(validator); ok {
		if err := c.validate(); err != nil {
			return v, &ParseError{Stage: stage, Text: text, Err: err}
		}
	}
	return v, nil
}

type latexPayload struct {
	Latex *string `json:"latex"`
}

func (p *latexPayload) validate() error {
	if p.Latex == nil {
		return errors.New("missing field latex")
	}
	return nil
}

type analysisPayload struct {
	Title    *string          `json:"title"`
	Analysis *models.Analysis `json:"analysis"`
}

func (p *analysisPayload) validate() error {
	if p.Title == nil {
		return errors.New("missing field title")
	}
	if p.Analysis == nil {
		return errors.New("missing field analysis")
	}
	return nil
}

type scorePayload struct {
	ConfidenceScore    *int    `json:"confidence_score"`
	VerificationReport *string `json:"verification_report"`
}

func (p *scorePayload) validate() error {
	if p.ConfidenceScore == nil {
		return errors.New("missing field confidence_score")
	}
	if *p.ConfidenceScore < 0 || *p.ConfidenceScore > 100 {
		return fmt.Errorf("confidence_score %d out of range", *p.ConfidenceScore)
	}
	if p.VerificationReport == nil {
		return errors.New("missing field verification_report")
	}
	return nil
}

type structuredPayload struct {
	models.Verification
}

func (p *structuredPayload) validate() error {
	if strings.TrimSpace(p.Status) == "" {
		return errors.New("missing field status")
	}
	return nil
}

// ParseLatex parses {"latex": "..."} and falls back to RelaxedLatex.
func ParseLatex(text string) (string, error) {
	p, err := ParseStrict[latexPayload](stageExtraction, text)
	if err == nil {
		return *p.Latex, nil
	}
	if v, ok := RelaxedLatex(text); ok {
		return v, nil
	}
	return "", err
}

// RelaxedLatex scans for the "latex" key and decodes the first complete JSON
// string after its colon, ignoring anything outside that string.
func RelaxedLatex(text string) (string, bool) {
	const key = `"latex"`
	start := strings.Index(text, key)
	if start < 0 {
		return "", false
	}
	start += len(key)
	colon := strings.IndexByte(text[start:], ':')
	if colon < 0 {
		return "", false
	}
	colon += start
	open := strings.IndexByte(text[colon+1:], '"')
	if open < 0 {
		return "", false
	}
	open += colon + 1
	escaped := false
	for i := open + 1; i < len(text); i++ {
		c := text[i]
		if c == '"' && !escaped {
			var out string
			if err := json.Unmarshal([]byte(text[open:i+1]), &out); err != nil {
				return "", false
			}
			return out, true
		}
		escaped = c == '\\' && !escaped
	}
	return "", false
}

// ParseAnalysis tolerates a model that answered the extraction schema instead:
// such output yields an empty result rather than an error.
func ParseAnalysis(text string) (AnalysisResult, error) {
	if strings.Contains(text, `"latex"`) && !strings.Contains(text, `"analysis"`) {
		return AnalysisResult{Analysis: emptyAnalysis()}, nil
	}
	p, err := ParseStrict[analysisPayload](stageAnalysis, text)
	if err != nil {
		return AnalysisResult{}, err
	}
	a := *p.Analysis
	normalizeAnalysis(&a)
	return AnalysisResult{Title: *p.Title, Analysis: a}, nil
}

func ParseVerificationResult(text string) (models.VerificationResult, error) {
	p, err := ParseStrict[scorePayload](stageVerification, text)
	if err != nil {
		return models.VerificationResult{}, err
	}
	return models.VerificationResult{ConfidenceScore: *p.ConfidenceScore, VerificationReport: *p.VerificationReport}, nil
}

func ParseVerification(text string) (models.Verification, error) {
	p, err := ParseStrict[structuredPayload](stageVerification, text)
	if err != nil {
		return models.Verification{}, err
	}
	v := p.Verification
	if v.Issues == nil {
		v.Issues = []models.VerificationIssue{}
	}
	return v, nil
}

func emptyAnalysis() models.Analysis {
	return models.Analysis{
		Variables:   []models.Variable{},
		Terms:       []models.Term{},
		Suggestions: []models.Suggestion{},
	}
}

func normalizeAnalysis(a *models.Analysis) {
	if a.Variables == nil {
		a.Variables = []models.Variable{}
	}
	if a.Terms == nil {
		a.Terms = []models.Term{}
	}
	if a.Suggestions == nil {
		a.Suggestions = []models.Suggestion{}
	}
}
