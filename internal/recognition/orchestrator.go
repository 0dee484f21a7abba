package recognition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"latexlens/internal/models"
	"latexlens/internal/prompts"
	"latexlens/internal/providers"
	"latexlens/internal/scoring"
	"latexlens/internal/storage"
	"latexlens/internal/util"
)

// HistoryAppender receives finished records.
type HistoryAppender interface {
	Append(ctx context.Context, rec models.HistoryRecord) error
}

// ImageSaver persists the source image and returns its reference.
type ImageSaver interface {
	SavePNG(id string, createdAt time.Time, png []byte) (string, error)
}

// StageRecorder stores one audit row per backend stage call.
type StageRecorder interface {
	Insert(ctx context.Context, rec storage.StageCallRecord) error
}

type Options struct {
	Prompts  prompts.Set
	Language string
	Format   string
}

// Orchestrator runs the extraction, analysis and verification stages for
// every image source.
type Orchestrator struct {
	backend providers.Backend
	opts    Options
	history HistoryAppender
	images  ImageSaver
	audit   StageRecorder
	log     zerolog.Logger

	now   func() time.Time
	newID func() string
}

func NewOrchestrator(backend providers.Backend, opts Options, history HistoryAppender, images ImageSaver, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		backend: backend,
		opts:    opts,
		history: history,
		images:  images,
		log:     logger.With().Str("component", "orchestrator").Logger(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// WithAudit enables the per-stage audit log.
func (o *Orchestrator) WithAudit(r StageRecorder) *Orchestrator {
	o.audit = r
	return o
}

func (o *Orchestrator) Language() string { return o.opts.Language }

func (o *Orchestrator) Format() string { return o.opts.Format }

func (o *Orchestrator) ModelName() string { return o.backend.Info().Model }

func (o *Orchestrator) Backend() providers.Backend { return o.backend }

// PromptSet validates the configured base prompts and builds the ones sent
// to the backend.
func (o *Orchestrator) PromptSet() (prompts.Set, models.PromptProvenance, error) {
	for _, stage := range []models.Stage{models.StageLatex, models.StageAnalysis, models.StageConfidence} {
		if _, err := o.stagePrompt(stage); err != nil {
			return prompts.Set{}, "", err
		}
	}
	return prompts.Build(o.opts.Prompts, o.opts.Language, o.opts.Format), prompts.Provenance(o.opts.Prompts, true), nil
}

// stagePrompt builds the prompt of a single stage and only fails when that
// stage's base prompt is blank.
func (o *Orchestrator) stagePrompt(stage models.Stage) (string, error) {
	base := o.opts.Prompts
	built := prompts.Build(base, o.opts.Language, o.opts.Format)
	var raw, out string
	switch stage {
	case models.StageLatex:
		raw, out = base.Latex, built.Latex
	case models.StageAnalysis:
		raw, out = base.Analysis, built.Analysis
	case models.StageConfidence:
		raw, out = base.Verification, built.Verification
	default:
		return "", fmt.Errorf("unknown stage %q", stage)
	}
	if strings.TrimSpace(raw) == "" {
		return "", &ConfigError{Stage: stage}
	}
	return out, nil
}

type stageResult[T any] struct {
	val T
	err error
}

func start[T any](fn func() (T, error)) <-chan stageResult[T] {
	ch := make(chan stageResult[T], 1)
	go func() {
		v, err := fn()
		ch <- stageResult[T]{val: v, err: err}
	}()
	return ch
}

// Recognize runs the full pipeline. Extraction failure is fatal; analysis and
// verification failures degrade to localized defaults. Progress events are
// emitted as latex, analysis, confidence regardless of completion order.
func (o *Orchestrator) Recognize(ctx context.Context, src ImageSource, sink ProgressSink) (models.HistoryRecord, error) {
	if src == nil {
		return models.HistoryRecord{}, ErrNoImage
	}
	if sink == nil {
		sink = nopSink{}
	}
	built, prov, err := o.PromptSet()
	if err != nil {
		return models.HistoryRecord{}, err
	}
	img, err := src.Image(ctx)
	if err != nil {
		return models.HistoryRecord{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := o.newID()
	createdAt := o.now().UTC()
	model := o.ModelName()
	log := o.log.With().Str("id", id).Logger()

	latexCh := start(func() (string, error) { return o.Extract(ctx, id, built.Latex, img.Base64) })
	analysisCh := start(func() (providers.AnalysisResult, error) { return o.Analyze(ctx, id, built.Analysis, img.Base64) })

	lr := <-latexCh
	if lr.err != nil {
		log.Error().Err(lr.err).Str("stage", string(models.StageLatex)).Msg("extraction failed")
		return models.HistoryRecord{}, lr.err
	}
	latex := lr.val
	sink.Emit(ctx, LatexEvent(id, latex, createdAt, img, model, prov))

	verifyCh := start(func() (models.VerificationResult, error) {
		return o.Verify(ctx, id, built.Verification, latex, img.Base64)
	})

	ar := <-analysisCh
	analysis := ar.val
	if ar.err != nil {
		log.Warn().Err(ar.err).Msg("analysis failed, using defaults")
		analysis = DegradedAnalysis(o.opts.Language)
	}
	analysis = FillEmptyAnalysis(analysis, o.opts.Language)
	sink.Emit(ctx, AnalysisEvent(id, analysis, model, prov))

	vr := <-verifyCh
	verification := vr.val
	if vr.err != nil {
		log.Warn().Err(vr.err).Msg("verification failed, using defaults")
		verification = DegradedVerification(o.opts.Language)
	}
	sink.Emit(ctx, ConfidenceEvent(id, verification, nil, model, prov))

	rec := AssembleRecord(id, createdAt, latex, analysis, verification, nil, img.DataURL(), model)
	return o.Persist(ctx, rec, img.PNG)
}

func AssembleRecord(id string, createdAt time.Time, latex string, analysis providers.AnalysisResult, vr models.VerificationResult, v *models.Verification, image, model string) models.HistoryRecord {
	report := vr.VerificationReport
	return models.HistoryRecord{
		ID:                 id,
		Latex:              latex,
		Title:              analysis.Title,
		Analysis:           analysis.Analysis,
		CreatedAt:          createdAt,
		ConfidenceScore:    vr.ConfidenceScore,
		OriginalImage:      image,
		ModelName:          model,
		Verification:       v,
		VerificationReport: &report,
	}
}

// Persist stores the image, points the record at it and appends the record
// to history.
func (o *Orchestrator) Persist(ctx context.Context, rec models.HistoryRecord, png []byte) (models.HistoryRecord, error) {
	if o.images != nil && len(png) > 0 {
		path, err := o.images.SavePNG(rec.ID, rec.CreatedAt, png)
		if err != nil {
			return models.HistoryRecord{}, err
		}
		rec.OriginalImage = path
	}
	if o.history != nil {
		if err := o.history.Append(ctx, rec); err != nil {
			return models.HistoryRecord{}, fmt.Errorf("append history: %w", err)
		}
	}
	return rec, nil
}

func (o *Orchestrator) Extract(ctx context.Context, id, prompt, imageB64 string) (string, error) {
	var out string
	err := o.track(ctx, id, models.StageLatex, imageB64, func() error {
		v, err := o.backend.ExtractText(ctx, providers.StageRequest{Prompt: prompt, ImageBase64: imageB64})
		out = v
		return err
	})
	return out, err
}

func (o *Orchestrator) Analyze(ctx context.Context, id, prompt, imageB64 string) (providers.AnalysisResult, error) {
	var out providers.AnalysisResult
	err := o.track(ctx, id, models.StageAnalysis, imageB64, func() error {
		v, err := o.backend.GenerateAnalysis(ctx, providers.StageRequest{Prompt: prompt, ImageBase64: imageB64})
		out = v
		return err
	})
	return out, err
}

func (o *Orchestrator) Verify(ctx context.Context, id, prompt, latex, imageB64 string) (models.VerificationResult, error) {
	var out models.VerificationResult
	err := o.track(ctx, id, models.StageConfidence, imageB64, func() error {
		v, err := o.backend.Verify(ctx, providers.StageRequest{Prompt: prompt, ImageBase64: imageB64, PriorText: latex})
		out = v
		return err
	})
	return out, err
}

// RetryAnalysis re-runs only the analysis stage. Errors are returned as is.
func (o *Orchestrator) RetryAnalysis(ctx context.Context, imageB64 string) (providers.AnalysisResult, error) {
	prompt, err := o.stagePrompt(models.StageAnalysis)
	if err != nil {
		return providers.AnalysisResult{}, err
	}
	img, err := Base64Source(imageB64).Image(ctx)
	if err != nil {
		return providers.AnalysisResult{}, err
	}
	res, err := o.Analyze(ctx, o.newID(), prompt, img.Base64)
	if err != nil {
		return providers.AnalysisResult{}, err
	}
	return FillEmptyAnalysis(res, o.opts.Language), nil
}

// VerificationOutcome carries the score and, when the structured check
// succeeded, the issues it was computed from.
type VerificationOutcome struct {
	Result     models.VerificationResult `json:"result"`
	Structured *models.Verification      `json:"verification,omitempty"`
}

// RetryVerification tries the structured check first, then the score form,
// then degrades.
func (o *Orchestrator) RetryVerification(ctx context.Context, latex, imageB64 string) (VerificationOutcome, error) {
	prompt, err := o.stagePrompt(models.StageConfidence)
	if err != nil {
		return VerificationOutcome{}, err
	}
	img, err := Base64Source(imageB64).Image(ctx)
	if err != nil {
		return VerificationOutcome{}, err
	}
	id := o.newID()
	lang := o.opts.Language

	var structured models.Verification
	err = o.track(ctx, id, models.StageConfidence, img.Base64, func() error {
		v, err := o.backend.VerifyStructured(ctx, providers.StageRequest{
			Prompt:      prompts.StructuredVerificationPrompt(latex, lang),
			ImageBase64: img.Base64,
			PriorText:   latex,
		})
		structured = v
		return err
	})
	if err == nil {
		return VerificationOutcome{
			Result:     scoring.Score(&structured, DegradedVerification(lang), lang),
			Structured: &structured,
		}, nil
	}
	o.log.Warn().Err(err).Msg("structured verification failed, falling back to score form")

	vr, err := o.Verify(ctx, id, prompt, latex, img.Base64)
	if err != nil {
		o.log.Warn().Err(err).Msg("verification failed, using defaults")
		vr = DegradedVerification(lang)
	}
	return VerificationOutcome{Result: vr}, nil
}

// ConfidenceOnly scores latex without an image. Errors are returned as is.
func (o *Orchestrator) ConfidenceOnly(ctx context.Context, latex string) (int, error) {
	prompt, err := o.stagePrompt(models.StageConfidence)
	if err != nil {
		return 0, err
	}
	vr, err := o.Verify(ctx, o.newID(), prompt, latex, "")
	if err != nil {
		return 0, err
	}
	return vr.ConfidenceScore, nil
}

func (o *Orchestrator) TestConnection(ctx context.Context) (providers.ProviderInfo, error) {
	if err := providers.Ping(ctx, o.backend); err != nil {
		return providers.ProviderInfo{}, err
	}
	return o.backend.Info(), nil
}

func (o *Orchestrator) track(ctx context.Context, id string, stage models.Stage, imageB64 string, fn func() error) error {
	started := time.Now()
	err := fn()
	if o.audit == nil {
		return err
	}
	info := o.backend.Info()
	rec := storage.StageCallRecord{
		RecognitionID: id,
		Stage:         string(stage),
		ProviderName:  info.Name,
		Model:         info.Model,
		Status:        "ok",
		DurationMS:    time.Since(started).Milliseconds(),
	}
	if imageB64 != "" {
		rec.ImageSHA256 = util.SHA256Hex([]byte(imageB64))
	}
	if err != nil {
		rec.Status = "error"
		rec.ErrorType = string(providers.ClassifyError(err))
	}
	if aerr := o.audit.Insert(context.WithoutCancel(ctx), rec); aerr != nil {
		o.log.Warn().Err(aerr).Str("id", id).Str("stage", string(stage)).Msg("audit insert failed")
	}
	return err
}
