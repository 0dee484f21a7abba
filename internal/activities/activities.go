package activities

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"

	"latexlens/internal/recognition"
)

// Activities exposes the orchestrator's stage calls to Temporal. Backend
// retries happen inside each call, so workflows run these with a single
// attempt.
type Activities struct {
	orch *recognition.Orchestrator
	sink recognition.ProgressSink
	log  zerolog.Logger
}

func New(orch *recognition.Orchestrator, sink recognition.ProgressSink, logger zerolog.Logger) *Activities {
	return &Activities{orch: orch, sink: sink, log: logger.With().Str("component", "activities").Logger()}
}

func (a *Activities) ExtractLatexActivity(ctx context.Context, in StageInput) (ExtractLatexOutput, error) {
	latex, err := a.orch.Extract(ctx, in.RecognitionID, in.Prompt, in.ImageBase64)
	if err != nil {
		return ExtractLatexOutput{}, err
	}
	return ExtractLatexOutput{Latex: latex}, nil
}

func (a *Activities) AnalyzeFormulaActivity(ctx context.Context, in StageInput) (AnalyzeFormulaOutput, error) {
	res, err := a.orch.Analyze(ctx, in.RecognitionID, in.Prompt, in.ImageBase64)
	if err != nil {
		return AnalyzeFormulaOutput{}, err
	}
	return AnalyzeFormulaOutput{Result: res}, nil
}

func (a *Activities) VerifyLatexActivity(ctx context.Context, in VerifyLatexInput) (VerifyLatexOutput, error) {
	vr, err := a.orch.Verify(ctx, in.RecognitionID, in.Prompt, in.Latex, in.ImageBase64)
	if err != nil {
		return VerifyLatexOutput{}, err
	}
	return VerifyLatexOutput{Result: vr}, nil
}

func (a *Activities) PublishProgressActivity(ctx context.Context, in PublishProgressInput) error {
	if a.sink != nil {
		a.sink.Emit(ctx, in.Event)
	}
	return nil
}

func (a *Activities) PersistRecognitionActivity(ctx context.Context, in PersistRecognitionInput) (PersistRecognitionOutput, error) {
	png, err := base64.StdEncoding.DecodeString(in.ImageBase64)
	if err != nil {
		return PersistRecognitionOutput{}, fmt.Errorf("decode image for %s: %w", in.Record.ID, err)
	}
	rec, err := a.orch.Persist(ctx, in.Record, png)
	if err != nil {
		return PersistRecognitionOutput{}, err
	}
	a.log.Info().Str("id", rec.ID).Int("confidence_score", rec.ConfidenceScore).Msg("recognition persisted")
	return PersistRecognitionOutput{Record: rec}, nil
}
