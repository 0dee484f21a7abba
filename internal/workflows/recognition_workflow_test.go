package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"latexlens/internal/activities"
	"latexlens/internal/models"
	"latexlens/internal/prompts"
	"latexlens/internal/providers"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newRecognitionEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(RecognitionWorkflow)
	registerActivityName(env, "ExtractLatexActivity", func(context.Context, activities.StageInput) (activities.ExtractLatexOutput, error) {
		return activities.ExtractLatexOutput{}, nil
	})
	registerActivityName(env, "AnalyzeFormulaActivity", func(context.Context, activities.StageInput) (activities.AnalyzeFormulaOutput, error) {
		return activities.AnalyzeFormulaOutput{}, nil
	})
	registerActivityName(env, "VerifyLatexActivity", func(context.Context, activities.VerifyLatexInput) (activities.VerifyLatexOutput, error) {
		return activities.VerifyLatexOutput{}, nil
	})
	registerActivityName(env, "PublishProgressActivity", func(context.Context, activities.PublishProgressInput) error { return nil })
	registerActivityName(env, "PersistRecognitionActivity", func(context.Context, activities.PersistRecognitionInput) (activities.PersistRecognitionOutput, error) {
		return activities.PersistRecognitionOutput{}, nil
	})
	return env
}

func testInput() RecognitionInput {
	return RecognitionInput{
		RecognitionID: "rec-1",
		ImageBase64:   "aGk=",
		Prompts:       prompts.Build(prompts.Defaults(), "en", "raw"),
		Provenance:    models.ProvenanceFull,
		Language:      "en",
		ModelName:     "gemini-test",
		CreatedAt:     time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
	}
}

func publishedStages(env *testsuite.TestWorkflowEnvironment) *[]models.Stage {
	stages := &[]models.Stage{}
	env.OnActivity("PublishProgressActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.PublishProgressInput) error {
		*stages = append(*stages, in.Event.Stage)
		return nil
	})
	return stages
}

func persistEcho(env *testsuite.TestWorkflowEnvironment) {
	env.OnActivity("PersistRecognitionActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.PersistRecognitionInput) (activities.PersistRecognitionOutput, error) {
		rec := in.Record
		rec.OriginalImage = "/data/pictures/" + rec.ID + ".png"
		return activities.PersistRecognitionOutput{Record: rec}, nil
	})
}

func TestRecognitionWorkflowSuccess(t *testing.T) {
	env := newRecognitionEnv(t)
	stages := publishedStages(env)
	persistEcho(env)
	in := testInput()

	env.OnActivity("ExtractLatexActivity", mock.Anything, activities.StageInput{RecognitionID: "rec-1", Prompt: in.Prompts.Latex, ImageBase64: "aGk="}).
		After(2*time.Second).Return(activities.ExtractLatexOutput{Latex: "E=mc^2"}, nil)
	env.OnActivity("AnalyzeFormulaActivity", mock.Anything, mock.Anything).
		Return(activities.AnalyzeFormulaOutput{Result: providers.AnalysisResult{Title: "Mass-energy", Analysis: models.Analysis{Summary: "equivalence"}}}, nil)
	env.OnActivity("VerifyLatexActivity", mock.Anything, activities.VerifyLatexInput{RecognitionID: "rec-1", Prompt: in.Prompts.Verification, Latex: "E=mc^2", ImageBase64: "aGk="}).
		Return(activities.VerifyLatexOutput{Result: models.VerificationResult{ConfidenceScore: 97, VerificationReport: "exact"}}, nil)

	env.ExecuteWorkflow(RecognitionWorkflow, in)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out models.HistoryRecord
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "E=mc^2", out.Latex)
	require.Equal(t, "Mass-energy", out.Title)
	require.Equal(t, 97, out.ConfidenceScore)
	require.Equal(t, "/data/pictures/rec-1.png", out.OriginalImage)
	require.Equal(t, []models.Stage{models.StageLatex, models.StageAnalysis, models.StageConfidence}, *stages)

	res, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var progress RecognitionProgress
	require.NoError(t, res.Get(&progress))
	require.Equal(t, "completed", progress.Status)
	require.Len(t, progress.Events, 3)
	require.Empty(t, progress.Degraded)
}

func TestRecognitionWorkflowExtractionFailureIsFatal(t *testing.T) {
	env := newRecognitionEnv(t)
	stages := publishedStages(env)
	env.OnActivity("ExtractLatexActivity", mock.Anything, mock.Anything).Return(activities.ExtractLatexOutput{}, errors.New("api request failed with status 400: bad"))
	env.OnActivity("AnalyzeFormulaActivity", mock.Anything, mock.Anything).Return(activities.AnalyzeFormulaOutput{}, nil)

	env.ExecuteWorkflow(RecognitionWorkflow, testInput())
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	require.Empty(t, *stages)
}

func TestRecognitionWorkflowDegradesAnalysisAndVerification(t *testing.T) {
	env := newRecognitionEnv(t)
	stages := publishedStages(env)
	persistEcho(env)
	env.OnActivity("ExtractLatexActivity", mock.Anything, mock.Anything).Return(activities.ExtractLatexOutput{Latex: "a+b"}, nil)
	env.OnActivity("AnalyzeFormulaActivity", mock.Anything, mock.Anything).Return(activities.AnalyzeFormulaOutput{}, errors.New("api request failed with status 503: busy"))
	env.OnActivity("VerifyLatexActivity", mock.Anything, mock.Anything).Return(activities.VerifyLatexOutput{}, errors.New("failed to send request: timeout"))

	env.ExecuteWorkflow(RecognitionWorkflow, testInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out models.HistoryRecord
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "Untitled formula", out.Title)
	require.Equal(t, "Analysis is temporarily unavailable. Please try again.", out.Analysis.Summary)
	require.Equal(t, 0, out.ConfidenceScore)
	require.Equal(t, "verification failed", *out.VerificationReport)
	require.Equal(t, []models.Stage{models.StageLatex, models.StageAnalysis, models.StageConfidence}, *stages)

	res, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var progress RecognitionProgress
	require.NoError(t, res.Get(&progress))
	require.Equal(t, []models.Stage{models.StageAnalysis, models.StageConfidence}, progress.Degraded)
}
