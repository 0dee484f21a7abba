package scoring

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"latexlens/internal/models"
	"latexlens/internal/prompts"
)

func issues(n int) []models.VerificationIssue {
	out := make([]models.VerificationIssue, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.VerificationIssue{Category: "symbol_mismatch", Message: fmt.Sprintf("issue %d", i)})
	}
	return out
}

func TestConfidenceScoreCoverage(t *testing.T) {
	v := models.Verification{
		Status:   models.VerificationError,
		Issues:   issues(3),
		Coverage: &models.VerificationCoverage{SymbolsMatched: 8, SymbolsTotal: 10, TermsMatched: 2, TermsTotal: 4},
	}
	require.Equal(t, 73, ConfidenceScore(v))

	v.Coverage = &models.VerificationCoverage{SymbolsMatched: 0, SymbolsTotal: 0, TermsMatched: 0, TermsTotal: 0}
	require.Equal(t, 100, ConfidenceScore(v))

	v.Coverage = &models.VerificationCoverage{SymbolsMatched: 12, SymbolsTotal: 10, TermsMatched: 4, TermsTotal: 4}
	require.Equal(t, 100, ConfidenceScore(v))
}

func TestConfidenceScoreHeuristic(t *testing.T) {
	require.Equal(t, 100, ConfidenceScore(models.Verification{Status: "ok"}))
	require.Equal(t, 68, ConfidenceScore(models.Verification{Status: "warning", Issues: issues(6)}))
	require.Equal(t, 60, ConfidenceScore(models.Verification{Status: "warning", Issues: issues(50)}))
	require.Equal(t, 10, ConfidenceScore(models.Verification{Status: "error", Issues: issues(20)}))
	require.Equal(t, 55, ConfidenceScore(models.Verification{Status: "unexpected", Issues: issues(1)}))
}

func TestScoreNilReturnsFallback(t *testing.T) {
	fb := models.VerificationResult{ConfidenceScore: 42, VerificationReport: "from backend"}
	require.Equal(t, fb, Score(nil, fb, "en"))
}

func TestReport(t *testing.T) {
	require.Equal(t, englishMessages.exact, Report(models.Verification{Status: "ok"}, "en"))
	require.Equal(t, chineseMessages.exact, Report(models.Verification{Status: "ok"}, "zh-CN"))

	r := Report(models.Verification{Status: "error", Issues: issues(2)}, "en")
	require.Equal(t, "Differences found:\n- [symbol_mismatch] issue 0\n- [symbol_mismatch] issue 1", r)

	r = Report(models.Verification{Status: "error", Issues: issues(13)}, "en")
	lines := strings.Split(r, "\n")
	require.Len(t, lines, 12)
	require.Equal(t, "(3 more issues omitted)", lines[11])
	require.NotContains(t, r, "issue 10")

	require.Equal(t, englishMessages.layoutOnly, Report(models.Verification{Status: "warning"}, "en"))
	require.Equal(t, chineseMessages.mismatch, Report(models.Verification{Status: "error"}, "zh-CN"))
}

func TestMessagesFollowPromptLanguage(t *testing.T) {
	for _, lang := range []string{prompts.LanguageChinese, "en", "zh-TW", ""} {
		want := englishMessages
		if prompts.IsChinese(lang) {
			want = chineseMessages
		}
		require.Equal(t, want, messagesFor(lang), lang)
	}
}
