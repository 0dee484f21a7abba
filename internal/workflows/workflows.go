package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"latexlens/internal/activities"
	"latexlens/internal/models"
	"latexlens/internal/recognition"
)

const QueryGetProgress = "GetProgress"

const TaskQueueDefault = "latexlens"

// RecognitionWorkflow is the durable form of Orchestrator.Recognize.
func RecognitionWorkflow(ctx workflow.Context, input RecognitionInput) (models.HistoryRecord, error) {
	progress := RecognitionProgress{
		RecognitionID: input.RecognitionID,
		CurrentStep:   "init",
		Status:        "processing",
		Events:        []models.ProgressEvent{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (RecognitionProgress, error) {
		return progress, nil
	}); err != nil {
		return models.HistoryRecord{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	publish := func(ev models.ProgressEvent) {
		progress.Events = append(progress.Events, ev)
		if err := workflow.ExecuteActivity(ctx, "PublishProgressActivity", activities.PublishProgressInput{Event: ev}).Get(ctx, nil); err != nil {
			logger.Warn("publish progress failed", "stage", ev.Stage, "error", err)
		}
	}

	stageIn := func(prompt string) activities.StageInput {
		return activities.StageInput{RecognitionID: input.RecognitionID, Prompt: prompt, ImageBase64: input.ImageBase64}
	}
	latexF := workflow.ExecuteActivity(ctx, "ExtractLatexActivity", stageIn(input.Prompts.Latex))
	analysisF := workflow.ExecuteActivity(ctx, "AnalyzeFormulaActivity", stageIn(input.Prompts.Analysis))

	progress.CurrentStep = "extract_latex"
	var latexOut activities.ExtractLatexOutput
	if err := latexF.Get(ctx, &latexOut); err != nil {
		progress.Status = "failed"
		progress.FailReason = err.Error()
		return models.HistoryRecord{}, err
	}
	img := recognition.Image{Base64: input.ImageBase64}
	publish(recognition.LatexEvent(input.RecognitionID, latexOut.Latex, input.CreatedAt, img, input.ModelName, input.Provenance))

	verifyF := workflow.ExecuteActivity(ctx, "VerifyLatexActivity", activities.VerifyLatexInput{
		RecognitionID: input.RecognitionID,
		Prompt:        input.Prompts.Verification,
		Latex:         latexOut.Latex,
		ImageBase64:   input.ImageBase64,
	})

	progress.CurrentStep = "analyze_formula"
	var analysisOut activities.AnalyzeFormulaOutput
	analysis := recognition.DegradedAnalysis(input.Language)
	if err := analysisF.Get(ctx, &analysisOut); err != nil {
		logger.Warn("analysis failed, using defaults", "error", err)
		progress.Degraded = append(progress.Degraded, models.StageAnalysis)
	} else {
		analysis = analysisOut.Result
	}
	analysis = recognition.FillEmptyAnalysis(analysis, input.Language)
	publish(recognition.AnalysisEvent(input.RecognitionID, analysis, input.ModelName, input.Provenance))

	progress.CurrentStep = "verify_latex"
	var verifyOut activities.VerifyLatexOutput
	verification := recognition.DegradedVerification(input.Language)
	if err := verifyF.Get(ctx, &verifyOut); err != nil {
		logger.Warn("verification failed, using defaults", "error", err)
		progress.Degraded = append(progress.Degraded, models.StageConfidence)
	} else {
		verification = verifyOut.Result
	}
	publish(recognition.ConfidenceEvent(input.RecognitionID, verification, nil, input.ModelName, input.Provenance))

	progress.CurrentStep = "persist"
	rec := recognition.AssembleRecord(input.RecognitionID, input.CreatedAt, latexOut.Latex, analysis, verification, nil, img.DataURL(), input.ModelName)
	var persistOut activities.PersistRecognitionOutput
	if err := workflow.ExecuteActivity(ctx, "PersistRecognitionActivity", activities.PersistRecognitionInput{
		Record:      rec,
		ImageBase64: input.ImageBase64,
	}).Get(ctx, &persistOut); err != nil {
		progress.Status = "failed"
		progress.FailReason = err.Error()
		return models.HistoryRecord{}, err
	}
	progress.Status = "completed"
	progress.CurrentStep = "done"
	return persistOut.Record, nil
}
