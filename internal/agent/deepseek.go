package agent

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"medical-triage-agent/internal/triage"
)

const deepSeekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekClient talks to DeepSeek's OpenAI-compatible endpoint. The schema
// is enforced through the instructions and json_object mode.
type DeepSeekClient struct {
	client         *goopenai.Client
	routerModel    string
	responderModel string
	temperature    float32
	maxTokens      int
}

func NewDeepSeekClient(cfg Config) (*DeepSeekClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}
	cfg = cfg.withDefaults()
	if cfg.RouterModel == DefaultModel {
		cfg.RouterModel = "deepseek-chat"
	}
	if cfg.ResponderModel == DefaultModel {
		cfg.ResponderModel = "deepseek-chat"
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = deepSeekBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &DeepSeekClient{
		client:         goopenai.NewClientWithConfig(clientCfg),
		routerModel:    cfg.RouterModel,
		responderModel: cfg.ResponderModel,
		temperature:    float32(cfg.Temperature),
		maxTokens:      cfg.MaxTokens,
	}, nil
}

func (c *DeepSeekClient) Name() string {
	return ProviderDeepSeek
}

func (c *DeepSeekClient) ClassifyCase(ctx context.Context, history []triage.Message) (*triage.ClassifierOutput, error) {
	msgs := goOpenAIMessages(history)
	msgs = append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: jsonInstruction(),
	})

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.routerModel,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, &ProviderError{Provider: ProviderDeepSeek, Op: "classify", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: ProviderDeepSeek, Op: "classify", Err: fmt.Errorf("deepseek returned no choices")}
	}

	out, err := decodeRouterReply(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderDeepSeek, Op: "classify", Err: err}
	}
	return out, nil
}

func (c *DeepSeekClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.responderModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", &ProviderError{Provider: ProviderDeepSeek, Op: "complete", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: ProviderDeepSeek, Op: "complete", Err: fmt.Errorf("deepseek returned no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func goOpenAIMessages(history []triage.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(history)+1)
	for _, m := range history {
		role := goopenai.ChatMessageRoleUser
		switch m.Role {
		case triage.RoleSystem:
			role = goopenai.ChatMessageRoleSystem
		case triage.RoleAssistant:
			role = goopenai.ChatMessageRoleAssistant
		}
		out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
