package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"medical-triage-agent/internal/triage"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// AnthropicClient routes cases through the Messages API. System entries of
// the history are lifted into the system parameter.
type AnthropicClient struct {
	client         anthropic.Client
	routerModel    string
	responderModel string
	temperature    float64
	maxTokens      int64
}

func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	cfg = cfg.withDefaults()
	if cfg.RouterModel == DefaultModel {
		cfg.RouterModel = defaultClaudeModel
	}
	if cfg.ResponderModel == DefaultModel {
		cfg.ResponderModel = defaultClaudeModel
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(cfg.APIKey),
		anthropicoption.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client:         anthropic.NewClient(opts...),
		routerModel:    cfg.RouterModel,
		responderModel: cfg.ResponderModel,
		temperature:    cfg.Temperature,
		maxTokens:      int64(cfg.MaxTokens),
	}, nil
}

func (c *AnthropicClient) Name() string {
	return ProviderAnthropic
}

func (c *AnthropicClient) ClassifyCase(ctx context.Context, history []triage.Message) (*triage.ClassifierOutput, error) {
	system := systemPrompt(history)
	if system != "" {
		system += "\n\n"
	}
	system += jsonInstruction()

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.routerModel),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    anthropicMessages(history),
	})
	if err != nil {
		return nil, &ProviderError{Provider: ProviderAnthropic, Op: "classify", Err: err}
	}

	out, err := decodeRouterReply(anthropicText(resp))
	if err != nil {
		return nil, &ProviderError{Provider: ProviderAnthropic, Op: "classify", Err: err}
	}
	return out, nil
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.responderModel),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", &ProviderError{Provider: ProviderAnthropic, Op: "complete", Err: err}
	}
	return anthropicText(resp), nil
}

func anthropicMessages(history []triage.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case triage.RoleSystem:
			continue
		case triage.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func anthropicText(resp *anthropic.Message) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
