package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"latexlens/internal/prompts"
	"latexlens/internal/providers"
)

type Config struct {
	APIAddr                string
	Provider               string
	APIKey                 string
	APIBase                string
	Model                  string
	RequestTimeoutSeconds  int
	MaxRetries             int
	MaxOutputTokens        int
	Language               string
	LatexFormat            string
	DataDir                string
	HistoryBackend         string
	PostgresURL            string
	TemporalAddress        string
	TemporalTaskQueue      string
	LatexPromptFile        string
	AnalysisPromptFile     string
	VerificationPromptFile string
	LogLevel               string
}

func Load() Config {
	return Config{
		APIAddr:                getenv("LATEXLENS_API_ADDR", ":8080"),
		Provider:               getenv("LATEXLENS_PROVIDER", "gemini"),
		APIKey:                 getenv("LATEXLENS_API_KEY", os.Getenv("GEMINI_API_KEY")),
		APIBase:                getenv("LATEXLENS_API_BASE", "https://generativelanguage.googleapis.com/v1beta/models"),
		Model:                  getenv("LATEXLENS_MODEL", "gemini-2.5-flash"),
		RequestTimeoutSeconds:  getenvInt("LATEXLENS_REQUEST_TIMEOUT_SECONDS", 120),
		MaxRetries:             getenvInt("LATEXLENS_MAX_RETRIES", 2),
		MaxOutputTokens:        getenvInt("LATEXLENS_MAX_OUTPUT_TOKENS", 240000),
		Language:               getenv("LATEXLENS_LANGUAGE", prompts.LanguageChinese),
		LatexFormat:            getenv("LATEXLENS_LATEX_FORMAT", "double_dollar"),
		DataDir:                getenv("LATEXLENS_DATA_DIR", "./data"),
		HistoryBackend:         getenv("LATEXLENS_HISTORY_BACKEND", "file"),
		PostgresURL:            os.Getenv("LATEXLENS_POSTGRES_URL"),
		TemporalAddress:        os.Getenv("LATEXLENS_TEMPORAL_ADDRESS"),
		TemporalTaskQueue:      getenv("LATEXLENS_TEMPORAL_TASK_QUEUE", "latexlens"),
		LatexPromptFile:        os.Getenv("LATEXLENS_LATEX_PROMPT_FILE"),
		AnalysisPromptFile:     os.Getenv("LATEXLENS_ANALYSIS_PROMPT_FILE"),
		VerificationPromptFile: os.Getenv("LATEXLENS_VERIFICATION_PROMPT_FILE"),
		LogLevel:               getenv("LOG_LEVEL", "info"),
	}
}

func (c Config) Backend() providers.Config {
	return providers.Config{
		APIKey:          c.APIKey,
		BaseURL:         c.APIBase,
		Model:           c.Model,
		Timeout:         time.Duration(c.RequestTimeoutSeconds) * time.Second,
		MaxRetries:      c.MaxRetries,
		MaxOutputTokens: c.MaxOutputTokens,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("LATEXLENS_MAX_RETRIES must be >= 0, got %d", c.MaxRetries))
	}
	if c.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("LATEXLENS_REQUEST_TIMEOUT_SECONDS must be > 0, got %d", c.RequestTimeoutSeconds))
	}
	switch c.HistoryBackend {
	case "file":
	case "postgres":
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("LATEXLENS_POSTGRES_URL is required for the postgres history backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LATEXLENS_HISTORY_BACKEND %q", c.HistoryBackend))
	}
	return errors.Join(errs...)
}

// Prompts returns the base prompts. A configured override file replaces the
// built-in prompt verbatim, including when its content is blank.
func (c Config) Prompts() (prompts.Set, error) {
	set := prompts.Defaults()
	overrides := []struct {
		path string
		dst  *string
	}{
		{c.LatexPromptFile, &set.Latex},
		{c.AnalysisPromptFile, &set.Analysis},
		{c.VerificationPromptFile, &set.Verification},
	}
	for _, o := range overrides {
		if o.path == "" {
			continue
		}
		b, err := os.ReadFile(o.path)
		if err != nil {
			return prompts.Set{}, fmt.Errorf("read prompt override %s: %w", o.path, err)
		}
		*o.dst = strings.TrimSpace(string(b))
	}
	return set, nil
}

func getenv(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
