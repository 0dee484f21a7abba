package prompts

import (
	"fmt"

	"latexlens/internal/models"
)

const LanguageChinese = "zh-CN"

const BaseLatexPrompt = `You are an expert in LaTeX OCR. Task: Given an image of a mathematical formula, EXTRACT THE LaTeX EXACTLY as shown in the image.

Never correct math, never infer intent, never simplify/normalize. Strictly preserve spacing/notation, symbol forms, order of terms, matrix layout, and the distinction between scalars vs vectors/tensors (e.g., boldface, overarrow, blackboard vs italic, uppercase/lowercase, indices). Do not convert a scalar to a vector/tensor or vice versa.

Brackets: Pay extreme attention to bracket KINDS and COUNTS. Use the exact types that appear and do not add/remove/misuse them: parentheses (), square brackets [], curly braces {}, and angle brackets ⟨⟩ when present. Ensure LaTeX grouping braces {} are balanced and minimal (no extra {}).

Command integrity: NEVER drop the leading backslash of LaTeX commands/environments. Always output commands with their backslashes, e.g., \begin{bmatrix} ... \end{bmatrix}, \frac{...}{...}, \partial, \alpha. Do not output truncated tokens like "egin", "frac", etc.

Noise handling: Ignore any non-formula artifacts captured in the screenshot (e.g., Word paragraph marks ↵, tab arrows ↹, UI chrome, page/section labels, figure captions, or reference tags like [1]). Transcribe ONLY the actual formula content. Do NOT add references, citations, or links.

Output only a strict JSON object: {"latex": "..."}. No Markdown, no comments, no extra text. Ensure JSON validity: escape every backslash in LaTeX for JSON (e.g., \\frac).`

const BaseAnalysisPrompt = `You are an expert in mathematics, physics, and technical writing. Based on the provided formula image (DO NOT change the formula), produce a structured analysis JSON with the following fields only: {"title": "...", "analysis": {"summary": "...", "variables": [{"symbol": "...", "description": "...", "unit": "?"}], "terms": [{"name": "...", "description": "..."}], "suggestions": [{"type": "error|warning|info", "message": "..."}]}}.

Instructions:
1) Variables: enumerate every symbol that appears (parameters, fields, operators like ∇ optional). For each, give a concise meaning and typical SI unit if applicable. If unit is unknown, use "?".
2) Terms: identify each distinct term/expression/sub-expression in the equation(s) (e.g., derivatives, integrals, summations, products, norms, matrix/vector operations, source terms). Provide a one-sentence physical/mathematical meaning for each.
3) Suggestions (three levels):
   - error: Hard mistakes such as dimensional inconsistency, impossible identities, wrong operators, missing brackets causing invalid grammar, or evident OCR mistakes leading to invalid math.
   - warning: Unusual or risky presentation that can hinder readability or typesetting (e.g., extremely long expressions likely to overflow, unconventional notation like uu instead of u^2 though intentionally preserved, ambiguous symbols).
   - info: General improvement advice (naming clarity, add definitions, add context equations or equivalent forms).
4) Scalar vs tensor: Pay special attention to the distinction between scalars and vectors/tensors (e.g., bold/arrow notation, indices). Preserve this distinction in variable descriptions and term explanations; do not convert between them.
5) References: Do NOT add references/citations/links anywhere (e.g., [1], (Smith, 2020)).
6) Output must be a strict JSON object with the exact schema above. No Markdown, no code fences, no extra commentary.`

const BaseVerificationPrompt = `You are a meticulous verification expert. Your task is to carefully compare the provided LaTeX code against the original mathematical formula image and provide both a confidence score and a detailed verification report.

Task: Analyze how accurately the LaTeX code represents the original image by examining:
1) Symbol accuracy: Are all symbols correctly identified and transcribed?
2) Structure fidelity: Do exponents, subscripts, fractions, and groupings match exactly?
3) Operator precision: Are mathematical operators (+, -, ×, ÷, =, etc.) correctly placed?
4) Layout consistency: Does the overall mathematical structure and spacing match?
5) Completeness: Are there any missing or extra elements?
6) Scalar vs tensor distinction: Treat mismatches between scalars and vectors/tensors (e.g., bold/arrow notation, indexing/ordering conveying tensor rank) as meaning-changing errors.

Output a strict JSON object with this exact schema:
{
  "confidence_score": 0-100,
  "verification_report": "A concise but thorough report detailing any discrepancies found between the LaTeX and the original image. If perfect match, state 'LaTeX accurately represents the original formula.' If issues found, describe specific problems like 'Missing subscript in variable x', 'Incorrect operator placement', or 'Vector/tensor vs scalar mismatch', etc."
}

Be precise and objective in your assessment. No Markdown formatting, no code fences, no extra commentary.`

const structuredVerifierTemplate = `You are a strict verifier. Compare the provided LaTeX with the image. Do NOT fix the LaTeX; only point out mismatches. Return a strict JSON: {
  "status": "error|warning|ok",
  "issues": [{"category": "missing_term|extra_term|symbol_mismatch|notation_mismatch|layout_mismatch|other", "message": "..."}],
  "coverage": {"symbols_matched": n, "symbols_total": n, "terms_matched": n, "terms_total": n}
}.
Rules:
- status=error if ANY mismatch that changes math meaning (missing/extra term, wrong symbol, wrong power/subscript, different operator).
- status=warning for layout/formatting-only differences (line breaks, spacing) that do not change math.
- status=ok only if visually and semantically equivalent.
- Be concise but precise.
%s
LaTeX to verify:
%s`

const jsonReminder = " IMPORTANT: The response MUST be a valid JSON object. Escape every backslash in LaTeX for JSON (e.g., \\\\frac). No Markdown fences."

// Set holds one prompt per stage.
type Set struct {
	Latex        string `json:"latex_prompt"`
	Analysis     string `json:"analysis_prompt"`
	Verification string `json:"verification_prompt"`
}

func Defaults() Set {
	return Set{Latex: BaseLatexPrompt, Analysis: BaseAnalysisPrompt, Verification: BaseVerificationPrompt}
}

func IsChinese(language string) bool { return language == LanguageChinese }

func AnalysisConstraint(language string) string {
	if IsChinese(language) {
		return "Important: Use Simplified Chinese for the values of 'title', 'analysis.summary', 'analysis.variables[*].description', 'analysis.terms[*].description', and 'analysis.suggestions[*].message'. Keep JSON keys in English."
	}
	return "Important: Use English for the values of 'title', 'analysis.summary', 'analysis.variables[*].description', 'analysis.terms[*].description', and 'analysis.suggestions[*].message'. Keep JSON keys in English."
}

func VerificationConstraint(language string) string {
	if IsChinese(language) {
		return "Important: Use Simplified Chinese for the 'verification_report' content. Keep JSON keys in English."
	}
	return "Important: Use English for the 'verification_report' content. Keep JSON keys in English."
}

// FormatRule is appended to the extraction prompt. Unknown formats behave
// like raw.
func FormatRule(format string) string {
	var rule string
	switch format {
	case "raw":
		rule = "\n\nFormatting rule: Return the bare LaTeX body ONLY inside the JSON value without any math delimiters (no $...$, no $$...$$, no \\[...\\], no \\begin{equation}...\\end{equation}). Place the exact LaTeX string in the 'latex' field."
	case "single_dollar":
		rule = "\n\nFormatting rule: Wrap the entire LaTeX with $...$ (inline math). The JSON must be {\"latex\": \"$<content>$\"}."
	case "double_dollar":
		rule = "\n\nFormatting rule: Wrap the entire LaTeX with $$...$$ (display math). The JSON must be {\"latex\": \"$$<content>$$\"}."
	case "equation":
		rule = "\n\nFormatting rule: Wrap the entire LaTeX with \\begin{equation} ... \\end{equation}. The JSON must be {\"latex\": \"\\begin{equation}<content>\\end{equation}\"}."
	case "bracket":
		rule = "\n\nFormatting rule: Wrap the entire LaTeX with \\[ ... \\] (display math). The JSON must be {\"latex\": \"\\[<content>\\]\"}."
	default:
		rule = "\n\nFormatting rule: Return the bare LaTeX body ONLY without any math delimiters and put it into the 'latex' field."
	}
	return rule + jsonReminder
}

// Build turns base prompts into the prompts actually sent for each stage.
func Build(base Set, language, format string) Set {
	return Set{
		Latex:        base.Latex + FormatRule(format),
		Analysis:     base.Analysis + "\n\n" + AnalysisConstraint(language),
		Verification: base.Verification + "\n\n" + VerificationConstraint(language),
	}
}

// Provenance tags which prompt set produced a recognition. appended reports
// whether Build was applied on top of the base prompts.
func Provenance(base Set, appended bool) models.PromptProvenance {
	if base != Defaults() {
		return models.ProvenanceCustom
	}
	if appended {
		return models.ProvenanceFull
	}
	return models.ProvenanceDefault
}

func StructuredVerificationPrompt(latex, language string) string {
	note := "Output language: English for 'issues[*].message'. Keys remain English."
	if IsChinese(language) {
		note = "Output language: Simplified Chinese for 'issues[*].message'. Keys remain English."
	}
	return fmt.Sprintf(structuredVerifierTemplate, note, latex)
}

type Part struct {
	Base       string `json:"base"`
	FormatRule string `json:"format_rule,omitempty"`
	Language   string `json:"language"`
	Full       string `json:"full"`
}

type PartSet struct {
	Latex        Part `json:"latex"`
	Analysis     Part `json:"analysis"`
	Verification Part `json:"verification"`
}

// Parts breaks the built-in prompts into their components for display.
// Extraction carries no language segment.
func Parts(language, format string) PartSet {
	full := Build(Defaults(), language, format)
	return PartSet{
		Latex:        Part{Base: BaseLatexPrompt, FormatRule: FormatRule(format), Full: full.Latex},
		Analysis:     Part{Base: BaseAnalysisPrompt, Language: AnalysisConstraint(language), Full: full.Analysis},
		Verification: Part{Base: BaseVerificationPrompt, Language: VerificationConstraint(language), Full: full.Verification},
	}
}
