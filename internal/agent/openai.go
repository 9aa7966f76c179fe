package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"medical-triage-agent/internal/triage"
)

// OpenAIClient routes cases with strict JSON-schema structured output.
type OpenAIClient struct {
	client         openai.Client
	routerModel    string
	responderModel string
	temperature    float64
	maxTokens      int64
}

func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	cfg = cfg.withDefaults()

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:         openai.NewClient(opts...),
		routerModel:    cfg.RouterModel,
		responderModel: cfg.ResponderModel,
		temperature:    cfg.Temperature,
		maxTokens:      int64(cfg.MaxTokens),
	}, nil
}

func (c *OpenAIClient) Name() string {
	return ProviderOpenAI
}

func (c *OpenAIClient) ClassifyCase(ctx context.Context, history []triage.Message) (*triage.ClassifierOutput, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.routerModel),
		Messages:            openAIMessages(history),
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        routerSchemaName,
					Description: openai.String("Decisão de roteamento do caso clínico"),
					Schema:      routerSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, &ProviderError{Provider: ProviderOpenAI, Op: "classify", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: ProviderOpenAI, Op: "classify", Err: fmt.Errorf("openai returned no choices")}
	}

	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return nil, &ProviderError{Provider: ProviderOpenAI, Op: "classify", Err: fmt.Errorf("model refused: %s", msg.Refusal)}
	}
	out, err := decodeRouterReply(msg.Content)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderOpenAI, Op: "classify", Err: err}
	}
	return out, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.responderModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", &ProviderError{Provider: ProviderOpenAI, Op: "complete", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: ProviderOpenAI, Op: "complete", Err: fmt.Errorf("openai returned no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIMessages(history []triage.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case triage.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case triage.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
