package workflows

import (
	"time"

	"latexlens/internal/models"
	"latexlens/internal/prompts"
)

// RecognitionInput carries prompts already built and validated by the caller,
// so the workflow never reads configuration.
type RecognitionInput struct {
	RecognitionID string                  `json:"recognition_id"`
	ImageBase64   string                  `json:"image_base64"`
	Prompts       prompts.Set             `json:"prompts"`
	Provenance    models.PromptProvenance `json:"provenance"`
	Language      string                  `json:"language"`
	ModelName     string                  `json:"model_name"`
	CreatedAt     time.Time               `json:"created_at"`
}

type RecognitionProgress struct {
	RecognitionID string                 `json:"recognition_id"`
	CurrentStep   string                 `json:"current_step"`
	Status        string                 `json:"status"`
	Degraded      []models.Stage         `json:"degraded,omitempty"`
	Events        []models.ProgressEvent `json:"events"`
	FailReason    string                 `json:"fail_reason,omitempty"`
}
