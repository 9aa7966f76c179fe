package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"medical-triage-agent/internal/triage"
)

const defaultGeminiModel = "gemini-2.0-flash"

type GeminiClient struct {
	client         *genai.Client
	routerModel    string
	responderModel string
	temperature    float32
	maxTokens      int32
}

func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	cfg = cfg.withDefaults()
	if cfg.RouterModel == DefaultModel {
		cfg.RouterModel = defaultGeminiModel
	}
	if cfg.ResponderModel == DefaultModel {
		cfg.ResponderModel = defaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:         client,
		routerModel:    cfg.RouterModel,
		responderModel: cfg.ResponderModel,
		temperature:    float32(cfg.Temperature),
		maxTokens:      int32(cfg.MaxTokens),
	}, nil
}

func (c *GeminiClient) Name() string {
	return ProviderGemini
}

func (c *GeminiClient) ClassifyCase(ctx context.Context, history []triage.Message) (*triage.ClassifierOutput, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.routerModel, geminiContents(history), c.classifyConfig(history))
	if err != nil {
		return nil, &ProviderError{Provider: ProviderGemini, Op: "classify", Err: err}
	}

	text, err := geminiText(resp)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderGemini, Op: "classify", Err: err}
	}
	out, err := decodeRouterReply(text)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderGemini, Op: "classify", Err: err}
	}
	return out, nil
}

// classifyConfig constrains the reply to the router schema, as the OpenAI
// client does with a strict json_schema.
func (c *GeminiClient) classifyConfig(history []triage.Message) *genai.GenerateContentConfig {
	system := systemPrompt(history)
	if system != "" {
		system += "\n\n"
	}
	system += jsonInstruction()

	return &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: routerSchema,
		Temperature:        genai.Ptr(c.temperature),
		MaxOutputTokens:    c.maxTokens,
	}
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.responderModel, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	})
	if err != nil {
		return "", &ProviderError{Provider: ProviderGemini, Op: "complete", Err: err}
	}
	text, err := geminiText(resp)
	if err != nil {
		return "", &ProviderError{Provider: ProviderGemini, Op: "complete", Err: err}
	}
	return text, nil
}

func geminiContents(history []triage.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case triage.RoleSystem:
			continue
		case triage.RoleAssistant:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return out
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
