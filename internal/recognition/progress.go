package recognition

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"latexlens/internal/models"
	"latexlens/internal/providers"
)

// ProgressSink receives stage completion events in stage order.
type ProgressSink interface {
	Emit(ctx context.Context, ev models.ProgressEvent)
}

type SinkFunc func(ctx context.Context, ev models.ProgressEvent)

func (f SinkFunc) Emit(ctx context.Context, ev models.ProgressEvent) { f(ctx, ev) }

type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Emit(ctx context.Context, ev models.ProgressEvent) {
	_ = ctx
	e := s.Logger.Info().Str("id", ev.ID).Str("stage", string(ev.Stage)).Str("prompt_version", string(ev.PromptVersion))
	if ev.ConfidenceScore != nil {
		e = e.Int("confidence_score", *ev.ConfidenceScore)
	}
	e.Msg("recognition progress")
}

type MultiSink []ProgressSink

func (m MultiSink) Emit(ctx context.Context, ev models.ProgressEvent) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

type nopSink struct{}

func (nopSink) Emit(context.Context, models.ProgressEvent) {}

func LatexEvent(id, latex string, createdAt time.Time, img Image, model string, prov models.PromptProvenance) models.ProgressEvent {
	return models.ProgressEvent{
		ID:            id,
		Stage:         models.StageLatex,
		Latex:         &latex,
		CreatedAt:     &createdAt,
		OriginalImage: img.DataURL(),
		ModelName:     model,
		PromptVersion: prov,
	}
}

func AnalysisEvent(id string, res providers.AnalysisResult, model string, prov models.PromptProvenance) models.ProgressEvent {
	title := res.Title
	analysis := res.Analysis
	return models.ProgressEvent{
		ID:            id,
		Stage:         models.StageAnalysis,
		Title:         &title,
		Analysis:      &analysis,
		ModelName:     model,
		PromptVersion: prov,
	}
}

func ConfidenceEvent(id string, vr models.VerificationResult, v *models.Verification, model string, prov models.PromptProvenance) models.ProgressEvent {
	score := vr.ConfidenceScore
	report := vr.VerificationReport
	return models.ProgressEvent{
		ID:                 id,
		Stage:              models.StageConfidence,
		ConfidenceScore:    &score,
		VerificationReport: &report,
		Verification:       v,
		ModelName:          model,
		PromptVersion:      prov,
	}
}
