package recognition

import (
	"errors"
	"fmt"

	"latexlens/internal/models"
)

var ErrNoImage = errors.New("no image provided")

// ConfigError reports a stage whose prompt is blank. It is raised before any
// backend call.
type ConfigError struct {
	Stage models.Stage
}

func (e *ConfigError) Error() string {
	switch e.Stage {
	case models.StageLatex:
		return "latex prompt is not set: fill it in or restore the default prompts"
	case models.StageAnalysis:
		return "analysis prompt is not set: fill it in or restore the default prompts"
	case models.StageConfidence:
		return "verification prompt is not set: fill it in or restore the default prompts"
	default:
		return fmt.Sprintf("%s prompt is not set", e.Stage)
	}
}
