package agent

import (
	"context"
	"fmt"
	"strings"

	"medical-triage-agent/internal/triage"
)

const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// DefaultModel is used for both the router and the specialists unless configured otherwise.
const DefaultModel = "gpt-4o-mini"

const defaultMaxTokens = 2048

// Model is an LLM backend that can route a case with structured output and
// answer a specialist prompt with free text.
type Model interface {
	triage.CaseClassifier
	triage.TextModel
	Name() string
}

type Config struct {
	Provider       string
	APIKey         string
	BaseURL        string
	RouterModel    string
	ResponderModel string
	Temperature    float64
	MaxTokens      int
}

func (c Config) withDefaults() Config {
	if c.RouterModel == "" {
		c.RouterModel = DefaultModel
	}
	if c.ResponderModel == "" {
		c.ResponderModel = c.RouterModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Model, error) {
	cfg = cfg.withDefaults()
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg)
	case ProviderDeepSeek:
		return NewDeepSeekClient(cfg)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg)
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	case ProviderMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// ProviderError marks a failed call to an upstream model API.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// systemPrompt concatenates the system messages of a history.
func systemPrompt(history []triage.Message) string {
	var parts []string
	for _, m := range history {
		if m.Role == triage.RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
