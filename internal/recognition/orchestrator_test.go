package recognition

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"latexlens/internal/models"
	"latexlens/internal/prompts"
	"latexlens/internal/providers"
	"latexlens/internal/storage"
)

var tinyPNG = base64.StdEncoding.EncodeToString([]byte("\x89PNG fake"))

type recordingSink struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (s *recordingSink) Emit(ctx context.Context, ev models.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) stages() []models.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Stage, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Stage)
	}
	return out
}

type memHistory struct {
	mu      sync.Mutex
	records []models.HistoryRecord
}

func (m *memHistory) Append(ctx context.Context, rec models.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]models.HistoryRecord{rec}, m.records...)
	return nil
}

type memImages struct {
	saved map[string][]byte
}

func (m *memImages) SavePNG(id string, createdAt time.Time, png []byte) (string, error) {
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	name := storage.ImageName(id, createdAt)
	m.saved[name] = png
	return "/pictures/" + name, nil
}

type memAudit struct {
	mu   sync.Mutex
	rows []storage.StageCallRecord
}

func (m *memAudit) Insert(ctx context.Context, rec storage.StageCallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rec)
	return nil
}

func newTestOrchestrator(b *fakeBackend, lang string) (*Orchestrator, *memHistory, *memImages) {
	h := &memHistory{}
	imgs := &memImages{}
	o := NewOrchestrator(b, Options{Prompts: prompts.Defaults(), Language: lang, Format: "raw"}, h, imgs, zerolog.Nop())
	o.newID = func() string { return "rec-1" }
	o.now = func() time.Time { return time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC) }
	return o, h, imgs
}

func TestRecognizeOrdersEventsWhenAnalysisFinishesFirst(t *testing.T) {
	b := newFakeBackend()
	b.extractGate = make(chan struct{})
	b.analysisDone = make(chan struct{})
	go func() {
		<-b.analysisDone
		close(b.extractGate)
	}()
	o, _, _ := newTestOrchestrator(b, "en")
	sink := &recordingSink{}

	rec, err := o.Recognize(context.Background(), Base64Source(tinyPNG), sink)
	require.NoError(t, err)
	require.Equal(t, []models.Stage{models.StageLatex, models.StageAnalysis, models.StageConfidence}, sink.stages())
	require.Equal(t, "x^2+1", rec.Latex)
	require.Equal(t, "Quadratic", rec.Title)
	require.Equal(t, 88, rec.ConfidenceScore)
	require.Equal(t, "close match", *rec.VerificationReport)
}

func TestRecognizeEventPayloads(t *testing.T) {
	b := newFakeBackend()
	o, h, imgs := newTestOrchestrator(b, "en")
	sink := &recordingSink{}

	rec, err := o.Recognize(context.Background(), Base64Source("data:image/png;base64,"+tinyPNG), sink)
	require.NoError(t, err)
	require.Len(t, sink.events, 3)

	latex := sink.events[0]
	require.Equal(t, "rec-1", latex.ID)
	require.Equal(t, "x^2+1", *latex.Latex)
	require.NotNil(t, latex.CreatedAt)
	require.Equal(t, "data:image/png;base64,"+tinyPNG, latex.OriginalImage)
	require.Equal(t, "fake-model", latex.ModelName)
	require.Equal(t, models.ProvenanceFull, latex.PromptVersion)
	require.Nil(t, latex.Title)

	require.Equal(t, "Quadratic", *sink.events[1].Title)
	require.Nil(t, sink.events[1].Latex)
	require.Equal(t, 88, *sink.events[2].ConfidenceScore)

	require.Len(t, h.records, 1)
	require.Equal(t, "/pictures/20261017_083000_rec-1.png", rec.OriginalImage)
	require.Equal(t, rec, h.records[0])
	require.Contains(t, imgs.saved, "20261017_083000_rec-1.png")

	// verification receives the extracted latex and the image
	require.True(t, strings.HasSuffix(b.prompts["verify"], "|x^2+1|"+tinyPNG))
	require.True(t, strings.HasSuffix(b.prompts["analysis"], prompts.AnalysisConstraint("en")))
	require.True(t, strings.HasSuffix(b.prompts["latex"], prompts.FormatRule("raw")))
}

func TestRecognizeExtractionFailureIsFatal(t *testing.T) {
	b := newFakeBackend()
	b.extractErr = errBackend
	o, h, _ := newTestOrchestrator(b, "en")
	sink := &recordingSink{}

	_, err := o.Recognize(context.Background(), Base64Source(tinyPNG), sink)
	require.Same(t, errBackend, err)
	require.Equal(t, "api request failed with status 400: bad request", err.Error())
	require.Empty(t, sink.events)
	require.Empty(t, h.records)
}

func TestRecognizeAnalysisFailureDegrades(t *testing.T) {
	for lang, wantTitle := range map[string]string{"en": "Untitled formula", "zh-CN": "未命名公式"} {
		b := newFakeBackend()
		b.analysisErr = errBackend
		o, _, _ := newTestOrchestrator(b, lang)

		rec, err := o.Recognize(context.Background(), Base64Source(tinyPNG), nil)
		require.NoError(t, err)
		require.Equal(t, wantTitle, rec.Title)
		require.Equal(t, DefaultSummary(lang), rec.Analysis.Summary)
		require.Empty(t, rec.Analysis.Variables)
		require.Empty(t, rec.Analysis.Terms)
		require.Empty(t, rec.Analysis.Suggestions)
		require.Equal(t, 88, rec.ConfidenceScore)
	}
}

func TestRecognizeKeepsBlankTitleOfRealAnalysis(t *testing.T) {
	b := newFakeBackend()
	b.analysis.Title = ""
	o, _, _ := newTestOrchestrator(b, "en")

	rec, err := o.Recognize(context.Background(), Base64Source(tinyPNG), nil)
	require.NoError(t, err)
	require.Equal(t, "", rec.Title)
	require.Equal(t, "roots", rec.Analysis.Summary)
}

func TestRecognizeWrongStageAnalysisGetsDefaultTitle(t *testing.T) {
	b := newFakeBackend()
	b.analysis = providers.AnalysisResult{Analysis: models.Analysis{
		Variables: []models.Variable{}, Terms: []models.Term{}, Suggestions: []models.Suggestion{},
	}}
	o, _, _ := newTestOrchestrator(b, "zh-CN")

	rec, err := o.Recognize(context.Background(), Base64Source(tinyPNG), nil)
	require.NoError(t, err)
	require.Equal(t, "未命名公式", rec.Title)
	require.Equal(t, "", rec.Analysis.Summary)
}

func TestRecognizeVerificationFailureDegrades(t *testing.T) {
	b := newFakeBackend()
	b.verifyErr = errBackend
	o, _, _ := newTestOrchestrator(b, "en")
	sink := &recordingSink{}

	rec, err := o.Recognize(context.Background(), Base64Source(tinyPNG), sink)
	require.NoError(t, err)
	require.Equal(t, 0, rec.ConfidenceScore)
	require.Equal(t, "verification failed", *rec.VerificationReport)
	require.Equal(t, 0, *sink.events[2].ConfidenceScore)
	require.Equal(t, "Quadratic", rec.Title)
}

func TestRecognizeEmptyPromptFailsBeforeBackend(t *testing.T) {
	cases := map[string]func(*prompts.Set){
		"latex":        func(s *prompts.Set) { s.Latex = "  " },
		"analysis":     func(s *prompts.Set) { s.Analysis = "" },
		"verification": func(s *prompts.Set) { s.Verification = "\n" },
	}
	messages := map[string]bool{}
	for name, mutate := range cases {
		b := newFakeBackend()
		set := prompts.Defaults()
		mutate(&set)
		o := NewOrchestrator(b, Options{Prompts: set, Language: "en"}, nil, nil, zerolog.Nop())

		_, err := o.Recognize(context.Background(), Base64Source(tinyPNG), nil)
		var ce *ConfigError
		require.True(t, errors.As(err, &ce), name)
		require.Equal(t, 0, b.callCount(), name)
		messages[err.Error()] = true
	}
	require.Len(t, messages, 3)
}

func TestRecognizeCustomPromptProvenance(t *testing.T) {
	b := newFakeBackend()
	set := prompts.Defaults()
	set.Latex = "my extraction prompt"
	o := NewOrchestrator(b, Options{Prompts: set, Language: "en"}, nil, nil, zerolog.Nop())
	sink := &recordingSink{}

	_, err := o.Recognize(context.Background(), Base64Source(tinyPNG), sink)
	require.NoError(t, err)
	for _, ev := range sink.events {
		require.Equal(t, models.ProvenanceCustom, ev.PromptVersion)
	}
}

func TestRecognizeRejectsBadImage(t *testing.T) {
	o, _, _ := newTestOrchestrator(newFakeBackend(), "en")
	_, err := o.Recognize(context.Background(), Base64Source(""), nil)
	require.ErrorIs(t, err, ErrNoImage)
	_, err = o.Recognize(context.Background(), Base64Source("%%%not-base64"), nil)
	require.Error(t, err)
}

func TestRecognizeWritesAuditRows(t *testing.T) {
	b := newFakeBackend()
	b.analysisErr = errBackend
	o, _, _ := newTestOrchestrator(b, "en")
	audit := &memAudit{}
	o.WithAudit(audit)

	_, err := o.Recognize(context.Background(), Base64Source(tinyPNG), nil)
	require.NoError(t, err)
	require.Len(t, audit.rows, 3)
	byStage := map[string]storage.StageCallRecord{}
	for _, r := range audit.rows {
		byStage[r.Stage] = r
	}
	require.Equal(t, "ok", byStage["latex"].Status)
	require.Equal(t, "error", byStage["analysis"].Status)
	require.Equal(t, "permanent", byStage["analysis"].ErrorType)
	require.Len(t, byStage["confidence"].ImageSHA256, 64)
}

func TestRetryVerificationPrefersStructured(t *testing.T) {
	b := newFakeBackend()
	b.structured = models.Verification{
		Status:   models.VerificationError,
		Issues:   []models.VerificationIssue{{Category: "missing_term", Message: "+1 missing"}},
		Coverage: &models.VerificationCoverage{SymbolsMatched: 8, SymbolsTotal: 10, TermsMatched: 2, TermsTotal: 4},
	}
	o, _, _ := newTestOrchestrator(b, "en")

	out, err := o.RetryVerification(context.Background(), "x^2", tinyPNG)
	require.NoError(t, err)
	require.Equal(t, 73, out.Result.ConfidenceScore)
	require.Contains(t, out.Result.VerificationReport, "- [missing_term] +1 missing")
	require.NotNil(t, out.Structured)
	require.Contains(t, b.prompts["structured"], "LaTeX to verify:\nx^2")
}

func TestRetryVerificationFallsBack(t *testing.T) {
	b := newFakeBackend()
	b.structuredErr = errBackend
	o, _, _ := newTestOrchestrator(b, "en")

	out, err := o.RetryVerification(context.Background(), "x^2", tinyPNG)
	require.NoError(t, err)
	require.Equal(t, 88, out.Result.ConfidenceScore)
	require.Nil(t, out.Structured)

	b.verifyErr = errBackend
	out, err = o.RetryVerification(context.Background(), "x^2", tinyPNG)
	require.NoError(t, err)
	require.Equal(t, DegradedVerification("en"), out.Result)
}

func TestRetryAnalysisSurfacesErrors(t *testing.T) {
	b := newFakeBackend()
	o, _, _ := newTestOrchestrator(b, "en")
	res, err := o.RetryAnalysis(context.Background(), tinyPNG)
	require.NoError(t, err)
	require.Equal(t, "Quadratic", res.Title)

	b.analysisErr = errBackend
	_, err = o.RetryAnalysis(context.Background(), tinyPNG)
	require.ErrorIs(t, err, errBackend)
}

func TestConfidenceOnlyAndConnection(t *testing.T) {
	b := newFakeBackend()
	o, _, _ := newTestOrchestrator(b, "en")

	score, err := o.ConfidenceOnly(context.Background(), "a+b")
	require.NoError(t, err)
	require.Equal(t, 88, score)
	require.True(t, strings.HasSuffix(b.prompts["verify"], "|a+b|"))

	info, err := o.TestConnection(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fake", info.Name)
	require.Equal(t, "ping", b.prompts["raw"])
}

func TestHelperOperationsCheckOnlyTheirOwnPrompt(t *testing.T) {
	b := newFakeBackend()
	set := prompts.Defaults()
	set.Latex = ""
	o := NewOrchestrator(b, Options{Prompts: set, Language: "en"}, nil, nil, zerolog.Nop())
	ctx := context.Background()

	score, err := o.ConfidenceOnly(ctx, "x^2")
	require.NoError(t, err)
	require.Equal(t, 88, score)

	_, err = o.RetryVerification(ctx, "x^2", tinyPNG)
	require.NoError(t, err)

	_, err = o.RetryAnalysis(ctx, tinyPNG)
	require.NoError(t, err)
	require.Positive(t, b.callCount())

	set = prompts.Defaults()
	set.Verification = " "
	o = NewOrchestrator(newFakeBackend(), Options{Prompts: set, Language: "en"}, nil, nil, zerolog.Nop())
	_, err = o.RetryAnalysis(ctx, tinyPNG)
	require.NoError(t, err)

	_, err = o.ConfidenceOnly(ctx, "x^2")
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, models.StageConfidence, ce.Stage)

	_, err = o.RetryVerification(ctx, "x^2", tinyPNG)
	require.True(t, errors.As(err, &ce))
	require.Equal(t, models.StageConfidence, ce.Stage)
}
