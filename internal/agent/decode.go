package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"medical-triage-agent/internal/triage"
)

// decodeModelJSON parses a JSON object out of a model reply, tolerating code
// fences and prose around it.
func decodeModelJSON(raw string, v any) error {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object in model reply")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}

func decodeRouterReply(raw string) (*triage.ClassifierOutput, error) {
	var resp routerResponse
	if err := decodeModelJSON(raw, &resp); err != nil {
		return nil, err
	}
	return resp.output(), nil
}
