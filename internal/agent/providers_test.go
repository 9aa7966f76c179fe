package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medical-triage-agent/internal/triage"
)

var history = []triage.Message{
	{Role: triage.RoleSystem, Content: triage.RouterPrompt},
	{Role: triage.RoleHuman, Content: "dor no peito"},
	{Role: triage.RoleAssistant, Content: "Há quanto tempo?"},
	{Role: triage.RoleHuman, Content: "30 minutos, irradia para o braço"},
}

const routerReply = `{"decision":"emergencial","case_synthesis":"Dor torácica há 30 min com irradiação","question_to_human":null,"decision_reason":"sinais de SCA"}`

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

type recorded struct {
	path string
	body map[string]any
}

func fakeAPI(t *testing.T, reply any) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&rec.body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func messageRoles(t *testing.T, body map[string]any) []string {
	t.Helper()
	raw, _ := body["messages"].([]any)
	roles := make([]string, 0, len(raw))
	for _, m := range raw {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	return roles
}

func TestOpenAIClassifyUsesStrictSchema(t *testing.T) {
	srv, rec := fakeAPI(t, chatCompletion(routerReply))
	c, err := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.ClassifyCase(context.Background(), history)
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision != "emergencial" || out.QuestionToHuman != nil {
		t.Fatalf("out = %+v", out)
	}

	if rec.path != "/chat/completions" {
		t.Errorf("path = %s", rec.path)
	}
	if rec.body["model"] != DefaultModel {
		t.Errorf("model = %v", rec.body["model"])
	}
	format := rec.body["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("response_format = %v", format)
	}
	schema := format["json_schema"].(map[string]any)
	if schema["strict"] != true || schema["name"] != routerSchemaName {
		t.Errorf("json_schema = %v", schema)
	}
	if got := strings.Join(messageRoles(t, rec.body), ","); got != "system,user,assistant,user" {
		t.Errorf("roles = %s", got)
	}
}

func TestOpenAIComplete(t *testing.T) {
	srv, rec := fakeAPI(t, chatCompletion("Acione o SAMU 192."))
	c, err := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", ResponderModel: "gpt-4o"})
	if err != nil {
		t.Fatal(err)
	}

	reply, err := c.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "Acione o SAMU 192." {
		t.Errorf("reply = %q", reply)
	}
	if rec.body["model"] != "gpt-4o" {
		t.Errorf("model = %v", rec.body["model"])
	}
	if _, ok := rec.body["response_format"]; ok {
		t.Errorf("free-text call sent a response_format")
	}
}

func TestOpenAIUpstreamErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c, _ := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	_, err := c.ClassifyCase(context.Background(), history)

	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Provider != ProviderOpenAI {
		t.Fatalf("error = %v, want ProviderError", err)
	}
}

func TestDeepSeekClassifyUsesJSONMode(t *testing.T) {
	srv, rec := fakeAPI(t, chatCompletion("```json\n"+routerReply+"\n```"))
	c, err := NewDeepSeekClient(Config{APIKey: "ds-test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.ClassifyCase(context.Background(), history)
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision != "emergencial" {
		t.Fatalf("out = %+v", out)
	}

	if rec.path != "/v1/chat/completions" {
		t.Errorf("path = %s", rec.path)
	}
	if rec.body["model"] != "deepseek-chat" {
		t.Errorf("model = %v", rec.body["model"])
	}
	format := rec.body["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v", format)
	}
	roles := messageRoles(t, rec.body)
	if len(roles) != 5 || roles[4] != "system" {
		t.Errorf("roles = %v, want schema instruction appended", roles)
	}
}

func TestAnthropicClassifyLiftsSystemPrompt(t *testing.T) {
	srv, rec := fakeAPI(t, map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         defaultClaudeModel,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content":       []map[string]any{{"type": "text", "text": routerReply}},
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 10},
	})
	c, err := NewAnthropicClient(Config{APIKey: "ak-test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.ClassifyCase(context.Background(), history)
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision != "emergencial" {
		t.Fatalf("out = %+v", out)
	}

	if rec.path != "/v1/messages" {
		t.Errorf("path = %s", rec.path)
	}
	if got := strings.Join(messageRoles(t, rec.body), ","); got != "user,assistant,user" {
		t.Errorf("roles = %s", got)
	}
	system, _ := rec.body["system"].([]any)
	if len(system) != 1 || !strings.Contains(system[0].(map[string]any)["text"].(string), "LLM Router") {
		t.Errorf("system = %v", rec.body["system"])
	}
}

func TestGeminiContentsSkipSystem(t *testing.T) {
	contents := geminiContents(history)
	if len(contents) != 3 {
		t.Fatalf("len = %d, want 3", len(contents))
	}
	if contents[1].Role != "model" || contents[0].Role != "user" {
		t.Errorf("roles = %s,%s", contents[0].Role, contents[1].Role)
	}
}

func TestGeminiClassifyConfigCarriesSchema(t *testing.T) {
	c := &GeminiClient{temperature: 0.2, maxTokens: 256}
	cfg := c.classifyConfig(history)

	if cfg.ResponseMIMEType != "application/json" {
		t.Errorf("mime = %q", cfg.ResponseMIMEType)
	}
	schema, ok := cfg.ResponseJsonSchema.(map[string]any)
	if !ok {
		t.Fatalf("ResponseJsonSchema = %T", cfg.ResponseJsonSchema)
	}
	props, _ := schema["properties"].(map[string]any)
	for _, key := range []string{"decision", "case_synthesis", "question_to_human", "decision_reason"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing %q", key)
		}
	}
	if cfg.SystemInstruction == nil || len(cfg.SystemInstruction.Parts) == 0 ||
		!strings.Contains(cfg.SystemInstruction.Parts[0].Text, "LLM Router") {
		t.Errorf("system instruction = %+v", cfg.SystemInstruction)
	}
}

func TestNewRequiresKeys(t *testing.T) {
	for _, p := range []string{ProviderOpenAI, ProviderDeepSeek, ProviderAnthropic, ProviderGemini} {
		if _, err := New(context.Background(), Config{Provider: p}); err == nil {
			t.Errorf("%s: expected missing key error", p)
		}
	}
	if _, err := New(context.Background(), Config{Provider: "llama"}); err == nil {
		t.Error("expected unknown provider error")
	}
	m, err := New(context.Background(), Config{Provider: ProviderMock})
	if err != nil || m.Name() != ProviderMock {
		t.Fatalf("mock provider: %v, %v", m, err)
	}
}

func TestMockClient(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient()

	tests := []struct {
		input string
		want  triage.Decision
	}{
		{"tuberculose", triage.DecisionAskHuman},
		{"Dor no peito intensa que irradia para o braço esquerdo", triage.DecisionEmergency},
		{"Dor de cabeça frontal há três meses que piora à tarde sem náuseas", triage.DecisionDifferential},
	}
	for _, tt := range tests {
		out, err := m.ClassifyCase(ctx, []triage.Message{
			{Role: triage.RoleSystem, Content: "sys"},
			{Role: triage.RoleHuman, Content: tt.input},
		})
		if err != nil {
			t.Fatal(err)
		}
		if triage.Decision(out.Decision) != tt.want {
			t.Errorf("%q: decision = %s, want %s", tt.input, out.Decision, tt.want)
		}
	}
}
