package models

import "time"

type Stage string

const (
	StageLatex      Stage = "latex"
	StageAnalysis   Stage = "analysis"
	StageConfidence Stage = "confidence"
)

type PromptProvenance string

const (
	ProvenanceDefault PromptProvenance = "default"
	ProvenanceCustom  PromptProvenance = "custom"
	ProvenanceFull    PromptProvenance = "full"
)

type Analysis struct {
	Summary     string       `json:"summary"`
	Variables   []Variable   `json:"variables"`
	Terms       []Term       `json:"terms"`
	Suggestions []Suggestion `json:"suggestions"`
}

type Variable struct {
	Symbol      string  `json:"symbol"`
	Description string  `json:"description"`
	Unit        *string `json:"unit,omitempty"`
}

type Term struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Suggestion severity is one of error, warning or info. The backend names the
// field "type".
type Suggestion struct {
	Severity string `json:"type"`
	Message  string `json:"message"`
}

const (
	VerificationOK      = "ok"
	VerificationWarning = "warning"
	VerificationError   = "error"
)

type Verification struct {
	Status   string                `json:"status"`
	Issues   []VerificationIssue   `json:"issues"`
	Coverage *VerificationCoverage `json:"coverage,omitempty"`
}

type VerificationIssue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

type VerificationCoverage struct {
	SymbolsMatched int `json:"symbols_matched"`
	SymbolsTotal   int `json:"symbols_total"`
	TermsMatched   int `json:"terms_matched"`
	TermsTotal     int `json:"terms_total"`
}

type VerificationResult struct {
	ConfidenceScore    int    `json:"confidence_score"`
	VerificationReport string `json:"verification_report"`
}

type HistoryRecord struct {
	ID                 string        `json:"id"`
	Latex              string        `json:"latex"`
	Title              string        `json:"title"`
	Analysis           Analysis      `json:"analysis"`
	IsFavorite         bool          `json:"is_favorite"`
	CreatedAt          time.Time     `json:"created_at"`
	ConfidenceScore    int           `json:"confidence_score"`
	OriginalImage      string        `json:"original_image"`
	ModelName          string        `json:"model_name,omitempty"`
	Verification       *Verification `json:"verification,omitempty"`
	VerificationReport *string       `json:"verification_report,omitempty"`
}

// ProgressEvent carries only the fields relevant to its stage.
type ProgressEvent struct {
	ID                 string           `json:"id"`
	Stage              Stage            `json:"stage"`
	Latex              *string          `json:"latex,omitempty"`
	Title              *string          `json:"title,omitempty"`
	Analysis           *Analysis        `json:"analysis,omitempty"`
	ConfidenceScore    *int             `json:"confidence_score,omitempty"`
	CreatedAt          *time.Time       `json:"created_at,omitempty"`
	OriginalImage      string           `json:"original_image,omitempty"`
	ModelName          string           `json:"model_name,omitempty"`
	Verification       *Verification    `json:"verification,omitempty"`
	VerificationReport *string          `json:"verification_report,omitempty"`
	PromptVersion      PromptProvenance `json:"prompt_version,omitempty"`
}
