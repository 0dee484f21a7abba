package scoring

import (
	"fmt"
	"math"
	"strings"

	"latexlens/internal/models"
	"latexlens/internal/prompts"
)

const maxReportedIssues = 10

type messages struct {
	exact      string
	header     string
	omitted    string
	layoutOnly string
	mismatch   string
}

var (
	chineseMessages = messages{
		exact:      "LaTeX 完全匹配原始公式。",
		header:     "发现以下差异：\n",
		omitted:    "(其余 %d 条问题已省略)",
		layoutOnly: "存在版式/排版差异，但不影响数学含义。",
		mismatch:   "存在与原图不一致的内容，请检查符号、上下标与项是否匹配。",
	}
	englishMessages = messages{
		exact:      "LaTeX matches the original formula exactly.",
		header:     "Differences found:\n",
		omitted:    "(%d more issues omitted)",
		layoutOnly: "Layout or formatting differences only; the mathematical meaning is unchanged.",
		mismatch:   "Content differs from the original image; check symbols, sub/superscripts and terms.",
	}
)

func messagesFor(language string) messages {
	if prompts.IsChinese(language) {
		return chineseMessages
	}
	return englishMessages
}

// Score converts a structured verification into a score and report. A nil
// verification yields fallback unchanged.
func Score(v *models.Verification, fallback models.VerificationResult, language string) models.VerificationResult {
	if v == nil {
		return fallback
	}
	return models.VerificationResult{
		ConfidenceScore:    ConfidenceScore(*v),
		VerificationReport: Report(*v, language),
	}
}

func ConfidenceScore(v models.Verification) int {
	if c := v.Coverage; c != nil {
		symbols := ratio(c.SymbolsMatched, c.SymbolsTotal)
		terms := ratio(c.TermsMatched, c.TermsTotal)
		combined := math.Round(0.75*symbols + 0.25*terms)
		return int(math.Max(0, math.Min(100, combined)))
	}
	n := len(v.Issues)
	switch v.Status {
	case models.VerificationOK:
		return 100
	case models.VerificationWarning:
		return floorSub(80, min(2*n, 20))
	default:
		return floorSub(60, min(5*n, 50))
	}
}

func ratio(matched, total int) float64 {
	if total <= 0 {
		return 100
	}
	return math.Round(100 * float64(matched) / float64(total))
}

func floorSub(a, b int) int {
	if b >= a {
		return 0
	}
	return a - b
}

func Report(v models.Verification, language string) string {
	msg := messagesFor(language)
	if v.Status == models.VerificationOK && len(v.Issues) == 0 {
		return msg.exact
	}
	lines := make([]string, 0, maxReportedIssues+1)
	for i, issue := range v.Issues {
		if i >= maxReportedIssues {
			break
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", issue.Category, issue.Message))
	}
	if len(v.Issues) > maxReportedIssues {
		lines = append(lines, fmt.Sprintf(msg.omitted, len(v.Issues)-maxReportedIssues))
	}
	if len(lines) == 0 {
		if v.Status == models.VerificationWarning {
			return msg.layoutOnly
		}
		return msg.mismatch
	}
	return msg.header + strings.Join(lines, "\n")
}
