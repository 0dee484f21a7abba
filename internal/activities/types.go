package activities

import (
	"latexlens/internal/models"
	"latexlens/internal/providers"
)

type StageInput struct {
	RecognitionID string `json:"recognition_id"`
	Prompt        string `json:"prompt"`
	ImageBase64   string `json:"image_base64"`
}

type ExtractLatexOutput struct {
	Latex string `json:"latex"`
}

type AnalyzeFormulaOutput struct {
	Result providers.AnalysisResult `json:"result"`
}

type VerifyLatexInput struct {
	RecognitionID string `json:"recognition_id"`
	Prompt        string `json:"prompt"`
	Latex         string `json:"latex"`
	ImageBase64   string `json:"image_base64"`
}

type VerifyLatexOutput struct {
	Result models.VerificationResult `json:"result"`
}

type PublishProgressInput struct {
	Event models.ProgressEvent `json:"event"`
}

type PersistRecognitionInput struct {
	Record      models.HistoryRecord `json:"record"`
	ImageBase64 string               `json:"image_base64"`
}

type PersistRecognitionOutput struct {
	Record models.HistoryRecord `json:"record"`
}
